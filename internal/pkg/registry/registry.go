package registry

import (
	"fmt"
	"order_lifecycle/internal/pkg/config"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/uploader"
	"order_lifecycle/internal/pkg/worker"
	"order_lifecycle/pkg/metrics"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB       *gorm.DB
	SQLX     *sqlx.DB // 读模型与 DB 共用连接池
	Redis    *redis.Client
	Router   *gin.Engine
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *metrics.MetricsCollector
	Workers  *worker.WorkerPool
	Notifier notify.Notifier
	Uploader uploader.Uploader // 未配置 OSS 时为 nil

	mu       sync.RWMutex
	services map[string]interface{}
}

// Provide 暴露组件给后初始化的模块
func (c *ModuleContext) Provide(name string, svc interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.services == nil {
		c.services = make(map[string]interface{})
	}
	c.services[name] = svc
}

// Resolve 获取先初始化的模块暴露的组件
func (c *ModuleContext) Resolve(name string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[name]
	if !ok {
		return nil, fmt.Errorf("service %q not provided, check module priority", name)
	}
	return svc, nil
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	// 例如：order 模块需要先于 payment 模块初始化
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}
	sortModules(modules)

	// 按顺序初始化
	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("module initialized", zap.String("module", module.Name()))
		}
	}

	return nil
}

// sortModules 优先级相同时按名称排序，保证初始化顺序稳定
func sortModules(modules []Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})
}
