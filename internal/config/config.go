package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageDriverFile     = "file"
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Lock       LockConfig
	Admin      AdminConfig
	License    LicenseConfig
	Completion CompletionConfig
	Worker     WorkerConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig selects how per-key activation critical sections are serialized.
type LockConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Wait   time.Duration `mapstructure:"wait"`
}

type AdminConfig struct {
	Secret     string `mapstructure:"secret"`
	SecretHash string `mapstructure:"secretHash"`
}

type LicenseConfig struct {
	DefaultDurationDays int `mapstructure:"defaultDurationDays"`
	MaxDurationDays     int `mapstructure:"maxDurationDays"`
}

type CompletionConfig struct {
	BaseURL       string        `mapstructure:"baseURL"`
	APIKey        string        `mapstructure:"apiKey"`
	Model         string        `mapstructure:"model"`
	SystemPrompt  string        `mapstructure:"systemPrompt"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxInputChars int           `mapstructure:"maxInputChars"`
}

type WorkerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	StatsSchedule string `mapstructure:"statsSchedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	v := viper.New()

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 90*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.shutdownPeriod", 15*time.Second)

	v.SetDefault("cors.allowOrigins", []string{"*"})

	v.SetDefault("storage.driver", StorageDriverFile)
	v.SetDefault("storage.dir", "./data")

	v.SetDefault("database.url", "")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.driver", LockDriverLocal)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.wait", 5*time.Second)

	v.SetDefault("admin.secret", "")
	v.SetDefault("admin.secretHash", "")

	v.SetDefault("license.defaultDurationDays", 30)
	v.SetDefault("license.maxDurationDays", 3650)

	v.SetDefault("completion.baseURL", "https://api.openai.com/v1")
	v.SetDefault("completion.apiKey", "")
	v.SetDefault("completion.model", "gpt-4o-mini")
	v.SetDefault("completion.systemPrompt", "You are a helpful assistant.")
	v.SetDefault("completion.timeout", 60*time.Second)
	v.SetDefault("completion.maxInputChars", 8000)

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.statsSchedule", "@every 5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
