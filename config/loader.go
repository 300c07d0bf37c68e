// =============================================================================
// 📦 flowcore 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("flowcore.yaml").
//	    WithEnvPrefix("FLOWCORE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "FLOWCORE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 flowcore 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Sandbox   SandboxConfig   `yaml:"sandbox" env:"SANDBOX"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Dispatch  DispatchConfig  `yaml:"dispatch" env:"DISPATCH"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Runlog    RunlogConfig    `yaml:"runlog" env:"RUNLOG"`
}

// ServerConfig serve 命令的 HTTP 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，0 表示不限制（WebSocket 长连接）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// WebSocket 心跳间隔
	PingInterval time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	// 允许的跨域 Origin 模式
	OriginPatterns []string `yaml:"origin_patterns" env:"ORIGIN_PATTERNS"`
}

// EngineConfig 执行器配置
type EngineConfig struct {
	// 单次运行最多执行的节点数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// 条件表达式最大长度
	ConditionMaxLength int `yaml:"condition_max_length" env:"CONDITION_MAX_LENGTH"`
}

// SandboxConfig 插件代码沙箱配置
type SandboxConfig struct {
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxWorkers      int           `yaml:"max_workers" env:"MAX_WORKERS"`
	LogPreviewChars int           `yaml:"log_preview_chars" env:"LOG_PREVIEW_CHARS"`
	CallStackSize   int           `yaml:"call_stack_size" env:"CALL_STACK_SIZE"`
	RegistryMaxSize int           `yaml:"registry_max_size" env:"REGISTRY_MAX_SIZE"`
	// 单个字符串上限与每次运行的表存储预算（字节）
	MaxStringBytes int   `yaml:"max_string_bytes" env:"MAX_STRING_BYTES"`
	MaxMemoryBytes int64 `yaml:"max_memory_bytes" env:"MAX_MEMORY_BYTES"`
}

// MemoryConfig 记忆组装配置
type MemoryConfig struct {
	// 最近消息条数
	ChatK int `yaml:"chat_k" env:"CHAT_K"`
	// 语义检索条数
	SemanticK int `yaml:"semantic_k" env:"SEMANTIC_K"`
	// 相似度距离阈值（不含）
	DistanceThreshold float64 `yaml:"distance_threshold" env:"DISTANCE_THRESHOLD"`
	// 上下文 Token 上限
	TokenCeiling int `yaml:"token_ceiling" env:"TOKEN_CEILING"`
	// 分词模型，为空时使用估算分词器
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
	// Redis 近期消息缓存 TTL，0 表示不使用 Redis
	RecentCacheTTL time.Duration `yaml:"recent_cache_ttl" env:"RECENT_CACHE_TTL"`
}

// DispatchConfig 工具调度配置
type DispatchConfig struct {
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	APIKeyPrefix    string        `yaml:"api_key_prefix" env:"API_KEY_PREFIX"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	DefaultTenantID string        `yaml:"default_tenant_id" env:"DEFAULT_TENANT_ID"`
}

// EmbeddingConfig 向量嵌入服务配置
type EmbeddingConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址，为空表示不启用
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 下为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 是否使用明文 gRPC 连接
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RunlogConfig 执行日志配置
type RunlogConfig struct {
	// 序列化输出的最大字节数
	MaxOutputBytes int `yaml:"max_output_bytes" env:"MAX_OUTPUT_BYTES"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, "engine.max_steps must be positive")
	}
	if c.Engine.ConditionMaxLength <= 0 {
		errs = append(errs, "engine.condition_max_length must be positive")
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, "sandbox.timeout must be positive")
	}
	if c.Sandbox.MaxWorkers <= 0 {
		errs = append(errs, "sandbox.max_workers must be positive")
	}
	if c.Memory.ChatK < 0 || c.Memory.SemanticK < 0 {
		errs = append(errs, "memory.chat_k and memory.semantic_k must not be negative")
	}
	if c.Memory.DistanceThreshold < 0 || c.Memory.DistanceThreshold > 2 {
		errs = append(errs, "memory.distance_threshold must be between 0 and 2")
	}
	if c.Memory.TokenCeiling <= 0 {
		errs = append(errs, "memory.token_ceiling must be positive")
	}
	if c.Dispatch.RateLimitRPS < 0 || c.Dispatch.RateLimitBurst < 0 {
		errs = append(errs, "dispatch rate limit must not be negative")
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Runlog.MaxOutputBytes <= 0 {
		errs = append(errs, "runlog.max_output_bytes must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
