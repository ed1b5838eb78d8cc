package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config - корневая структура конфигурации хелпдеска.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	LogRequests  bool          `mapstructure:"log_requests"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig описывает живое хранилище транзакций (PostgreSQL через pgx или SQLite).
type StoreConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // pgx, sqlite
	URL             string        `mapstructure:"url"`
	Table           string        `mapstructure:"table"`
	SummaryTable    string        `mapstructure:"summary_table"`
	MaxConns        int           `mapstructure:"max_conns"`
	SavePredictions bool          `mapstructure:"save_predictions"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`

	// Circuit Breaker вокруг чтения ленты: после серии сбоев сразу идем в архивный файл
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// ArchiveConfig - плоский CSV-файл, из которого читаем ленту, когда БД недоступна.
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// OracleConfig - внешний процесс скоринга.
type OracleConfig struct {
	Command   string        `mapstructure:"command"`
	Args      []string      `mapstructure:"args"`
	Dir       string        `mapstructure:"dir"`
	Env       []string      `mapstructure:"env"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Debug     bool          `mapstructure:"debug"` // отдавать stderr оракула в каждом ответе
	MaxStderr int           `mapstructure:"max_stderr"`

	// Защита от шторма запусков процессов
	Rate            float64       `mapstructure:"rate"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// StatsConfig - кэш сводной статистики.
type StatsConfig struct {
	Freshness       time.Duration `mapstructure:"freshness"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"` // 0 - фоновое обновление выключено, сводка в БД тогда не обновляется сама
	HighRiskKYC     float64       `mapstructure:"high_risk_kyc"`
}

// RedisConfig описывает подключение к Redis (общий кэш сводки и Pub/Sub).
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SummaryTTL time.Duration `mapstructure:"summary_ttl"`
}

// AuthConfig - проверка токенов аналитиков (RS256). Пустой ключ - API открыт.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig - экспорт метрик Prometheus.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path может указывать на конкретный файл; пустая строка - ищем config.yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// STORE_ENABLED=true перекроет store.enabled
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if cfg.Server.WriteTimeout == 0 {
		// Запрос на скоринг ждет процесс оракула целиком
		cfg.Server.WriteTimeout = cfg.Oracle.Timeout + 5*time.Second
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// ENV-перекрытие работает только для известных viper ключей, поэтому объявляем все
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.log_requests", false)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", "pgx")
	v.SetDefault("store.url", "")
	v.SetDefault("store.table", "transaction")
	v.SetDefault("store.summary_table", "stats_summary")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.save_predictions", false)
	v.SetDefault("store.write_timeout", 10*time.Second)
	v.SetDefault("store.breaker_failures", 5)
	v.SetDefault("store.breaker_timeout", 30*time.Second)

	v.SetDefault("archive.path", "data/transactions.csv")

	v.SetDefault("oracle.command", "python3")
	v.SetDefault("oracle.args", []string{"ml/predict.py"})
	v.SetDefault("oracle.dir", ".")
	v.SetDefault("oracle.env", []string{})
	v.SetDefault("oracle.debug", false)
	v.SetDefault("oracle.timeout", 2*time.Minute)
	v.SetDefault("oracle.max_stderr", 64*1024)
	v.SetDefault("oracle.rate", 10)
	v.SetDefault("oracle.burst", 5)
	v.SetDefault("oracle.breaker_failures", 5)
	v.SetDefault("oracle.breaker_timeout", 30*time.Second)

	v.SetDefault("stats.freshness", 60*time.Second)
	v.SetDefault("stats.refresh_interval", 60*time.Second)
	v.SetDefault("stats.high_risk_kyc", 40)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.summary_ttl", 5*time.Minute)

	v.SetDefault("auth.public_key_path", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// loadKeyResource - ключ из ENV (PEM целиком) или из файла по пути из конфига.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}

// Addr возвращает адрес для http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
