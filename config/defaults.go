package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			PingInterval:    20 * time.Second,
		},
		Engine: EngineConfig{
			MaxSteps:           25,
			ConditionMaxLength: 500,
		},
		Sandbox: SandboxConfig{
			Timeout:         10 * time.Second,
			MaxWorkers:      8,
			LogPreviewChars: 1000,
			CallStackSize:   120,
			RegistryMaxSize: 256 * 1024,
			MaxStringBytes:  1 << 20,
			MaxMemoryBytes:  64 << 20,
		},
		Memory: MemoryConfig{
			ChatK:             10,
			SemanticK:         5,
			DistanceThreshold: 0.35,
			TokenCeiling:      1800,
			TokenizerModel:    "gpt-4o",
		},
		Dispatch: DispatchConfig{
			BaseURL:        "http://localhost:8000",
			APIKeyPrefix:   "tenant_",
			Timeout:        30 * time.Second,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "https://api.openai.com",
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            5432,
			User:            "flowcore",
			Name:            "flowcore.db",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			Insecure:     true,
			ServiceName:  "flowcore",
			SampleRate:   0.1,
		},
		Runlog: RunlogConfig{
			MaxOutputBytes: 100_000,
		},
	}
}
