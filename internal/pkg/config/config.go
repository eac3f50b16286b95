package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	App      AppConfig       `mapstructure:"app"`
	OSS      OSSConfig       `mapstructure:"oss"`
	Push     PushConfig      `mapstructure:"push"`
	Alipay   AlipayConfig    `mapstructure:"alipay"`
	Wechat   WechatPayConfig `mapstructure:"wechat"`
	RabbitMQ RabbitMQConfig  `mapstructure:"rabbitmq"`
	Order    OrderConfig     `mapstructure:"order"`
	Worker   WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port      string  `mapstructure:"port"`
	Mode      string  `mapstructure:"mode"`
	RateLimit float64 `mapstructure:"rate_limit"` // 每个 IP 每秒请求数，0 表示不限流
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type AlipayConfig struct {
	AppID        string `mapstructure:"app_id"`
	PrivateKey   string `mapstructure:"private_key"`   // 应用私钥
	PublicKey    string `mapstructure:"public_key"`    // 支付宝公钥 (不是应用公钥)
	NotifyURL    string `mapstructure:"notify_url"`    // 异步通知地址
	ReturnURL    string `mapstructure:"return_url"`    // 同步跳转地址
	IsProduction bool   `mapstructure:"is_production"` // 是否生产环境
}

type WechatPayConfig struct {
	AppID                string `mapstructure:"app_id"`
	MchID                string `mapstructure:"mch_id"`
	MchCertificateSerial string `mapstructure:"mch_cert_serial"`
	MchPrivateKey        string `mapstructure:"mch_private_key"`
	APIv3Key             string `mapstructure:"apiv3_key"`
	NotifyURL            string `mapstructure:"notify_url"`
	RefundNotifyURL      string `mapstructure:"refund_notify_url"`
}

// RabbitMQConfig 订单事件广播，URL 为空时不启用
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// OrderConfig 订单生命周期引擎配置
type OrderConfig struct {
	CommissionRate  float64       `mapstructure:"commission_rate"` // 平台抽成比例
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	BulkConcurrency int           `mapstructure:"bulk_concurrency"`
	BulkMaxIDs      int           `mapstructure:"bulk_max_ids"`
	OTPMaxAttempts  int           `mapstructure:"otp_max_attempts"`
	OTPLockout      time.Duration `mapstructure:"otp_lockout"`
	CountsCacheTTL  time.Duration `mapstructure:"counts_cache_ttl"`
	RefundTimeout   time.Duration `mapstructure:"refund_timeout"`
	ExportMaxRows   int           `mapstructure:"export_max_rows"`
}

// WorkerConfig 异步副作用派发配置
type WorkerConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	MaxRetry    int           `mapstructure:"max_retry"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Order.CommissionRate < 0 || c.Order.CommissionRate >= 1 {
		return errors.New("order commission rate must be within [0, 1)")
	}
	if c.Order.MaxPageSize < c.Order.DefaultPageSize {
		return errors.New("order max page size must not be smaller than default page size")
	}

	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_burst", 200)
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("rabbitmq.exchange", "order_events")

	v.SetDefault("order.commission_rate", 0.20)
	v.SetDefault("order.default_page_size", 10)
	v.SetDefault("order.max_page_size", 50)
	v.SetDefault("order.bulk_concurrency", 8)
	v.SetDefault("order.bulk_max_ids", 200)
	v.SetDefault("order.otp_max_attempts", 3)
	v.SetDefault("order.otp_lockout", 10*time.Minute)
	v.SetDefault("order.counts_cache_ttl", 5*time.Second)
	v.SetDefault("order.refund_timeout", 10*time.Second)
	v.SetDefault("order.export_max_rows", 5000)

	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.queue_size", 1024)
	v.SetDefault("worker.max_retry", 5)
	v.SetDefault("worker.base_backoff", time.Second)
	v.SetDefault("worker.max_backoff", 30*time.Second)
}

// Load 读取配置文件与环境变量，不做校验
func Load(v *viper.Viper) (Config, error) {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}
	if mqURL := os.Getenv("RABBITMQ_URL"); mqURL != "" {
		cfg.RabbitMQ.URL = mqURL
	}

	return cfg, nil
}

// LoadConfig 加载配置
func LoadConfig() {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	GlobalConfig = cfg
	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
