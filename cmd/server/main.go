package main

import (
	"context"
	"errors"
	"net/http"
	"order_lifecycle/docs"
	"order_lifecycle/internal/pkg/config"
	"order_lifecycle/internal/pkg/middleware"
	"order_lifecycle/internal/pkg/mq"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/push"
	"order_lifecycle/internal/pkg/registry"
	"order_lifecycle/internal/pkg/uploader"
	"order_lifecycle/internal/pkg/worker"
	"order_lifecycle/pkg/database"
	"order_lifecycle/pkg/logger"
	"order_lifecycle/pkg/metrics"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "order_lifecycle/internal/domain/order"
	_ "order_lifecycle/internal/domain/payment"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	poolStatsInterval = 15 * time.Second
)

// @title           Order Lifecycle API
// @version         1.0
// @description     订单生命周期引擎: 状态流转、取件码、退款与收益结算
// @BasePath        /
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	// 1. 加载配置
	config.LoadConfig()
	cfg := config.GlobalConfig

	// 2. 初始化日志
	if err := logger.InitLogger(cfg.Server.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 3. 初始化数据库与缓存
	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlxDB, err := database.NewSQLX(db)
	if err != nil {
		logger.Log.Fatal("Failed to open read model connection", zap.Error(err))
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to connect to redis", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewMetricsCollector(reg)

	// 4. 异步副作用工作池
	pool := worker.NewWorkerPool(worker.Options{
		Workers:     cfg.Worker.Workers,
		QueueSize:   cfg.Worker.QueueSize,
		MaxRetry:    cfg.Worker.MaxRetry,
		BaseBackoff: cfg.Worker.BaseBackoff,
		MaxBackoff:  cfg.Worker.MaxBackoff,
		OnDeadLetter: func(task worker.Task, err error) {
			collector.RecordDeadLetter(task.Name)
			logger.Log.Error("side effect dead lettered",
				zap.String("task", task.Name), zap.String("key", task.Key), zap.Error(err))
		},
	})
	pool.Start()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if sqlDB, err := db.DB(); err == nil {
		go database.MonitorPool(bgCtx, sqlDB, collector, poolStatsInterval)
	}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				collector.SetQueueDepth(pool.QueueDepth())
			}
		}
	}()

	// 5. 通知渠道: 日志 + 阿里云推送 + RabbitMQ，未配置的渠道跳过
	notifiers := notify.Multi{notify.LogNotifier{}}
	if pushSvc, err := push.NewAliyunPushService(cfg.Push); err == nil {
		notifiers = append(notifiers, push.NewNotifier(pushSvc))
	} else {
		logger.Log.Info("push notifications disabled", zap.Error(err))
	}
	var publisher *mq.Publisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err = mq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		notifiers = append(notifiers, publisher)
	}

	var exportUploader uploader.Uploader
	if up, err := uploader.NewAliyunOSSUploader(cfg.OSS); err == nil {
		exportUploader = up
	} else {
		logger.Log.Info("export upload disabled, exports are streamed", zap.Error(err))
	}

	// 6. 路由与中间件
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"},
		ExposeHeaders:   []string{"X-Trace-ID", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.MetricsMiddleware(collector))
	r.Use(middleware.RateLimitMiddleware(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	docs.SwaggerInfo.Version = "1.0"
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 7. 初始化业务模块
	moduleCtx := &registry.ModuleContext{
		DB:       db,
		SQLX:     sqlxDB,
		Redis:    rdb,
		Router:   r,
		Config:   cfg,
		Logger:   logger.Log,
		Metrics:  collector,
		Workers:  pool,
		Notifier: notifiers,
		Uploader: exportUploader,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		logger.Log.Fatal("Failed to init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 请求处理完后再停止工作池，未执行的任务进入死信
	pool.Stop()
	stopBackground()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Log.Warn("close rabbitmq publisher", zap.Error(err))
		}
	}
	if err := rdb.Close(); err != nil {
		logger.Log.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Log.Info("Server exited")
}
