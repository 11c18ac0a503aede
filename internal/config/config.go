package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendGorm     = "gorm"
	BackendMongo    = "mongo"
)

// Receipt storage backends
const (
	ReceiptsLocal = "local"
	ReceiptsMinio = "minio"
)

// EnvProduction suppresses raw error text in HTTP responses
const EnvProduction = "production"

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Receipts ReceiptsConfig `mapstructure:"receipts"`
	Expenses ExpensesConfig `mapstructure:"expenses"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the app runs in production mode
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, EnvProduction)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb"`
}

// StorageConfig selects the record store
type StorageConfig struct {
	Backend    string        `mapstructure:"backend"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SQLiteConfig holds embedded database configuration
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PostgresConfig is shared by the postgres and gorm backends
type PostgresConfig struct {
	URL         string `mapstructure:"url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// MongoConfig holds document database configuration
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the optional read-through cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether the cache should be wired
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// ReceiptsConfig selects where uploaded receipts are kept
type ReceiptsConfig struct {
	Backend       string      `mapstructure:"backend"`
	Dir           string      `mapstructure:"dir"`
	MaxImageWidth int         `mapstructure:"max_image_width"`
	Minio         MinioConfig `mapstructure:"minio"`
}

// MinioConfig holds S3-compatible object storage settings
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// ExpensesConfig holds submission rules
type ExpensesConfig struct {
	RequiredProfile string `mapstructure:"required_profile"`
}

// LarkConfig holds Lark API configuration. Notifications are off unless all three are set.
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Loader reads configuration from an optional YAML file, an optional .env file
// and the process environment
type Loader struct {
	v          *viper.Viper
	configPath string
	envFile    string
	fileLoaded bool
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithEnvFile sets the dotenv file read before the environment is bound
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) {
		l.envFile = path
	}
}

// NewLoader creates a loader. An empty configPath means environment only.
func NewLoader(configPath string, opts ...LoaderOption) *Loader {
	l := &Loader{
		v:          viper.New(),
		configPath: configPath,
		envFile:    ".env",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads, unmarshals and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	setDefaults(l.v)

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			l.v.SetConfigFile(l.configPath)
			l.v.SetConfigType("yaml")
			if err := l.v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			l.fileLoaded = true
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := bindEnvVars(l.v); err != nil {
		return nil, err
	}

	return l.unmarshal()
}

// Watch calls onChange with the re-read configuration whenever the config
// file is written. It is a no-op when no file was loaded.
func (l *Loader) Watch(onChange func(*Config, error)) bool {
	if !l.fileLoaded {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(l.unmarshal())
	})
	l.v.WatchConfig()
	return true
}

// ConfigFileUsed returns the path of the loaded config file, if any
func (l *Loader) ConfigFileUsed() string {
	if !l.fileLoaded {
		return ""
	}
	return l.v.ConfigFileUsed()
}

func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	if _, err := os.Stat(l.envFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// gotenv never overrides variables already set in the environment
	if err := gotenv.Load(l.envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", l.envFile, err)
	}
	return nil
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_mb", 10)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.retry_delay", 5*time.Second)

	// Database defaults
	v.SetDefault("sqlite.path", "data/expenses.db")
	v.SetDefault("sqlite.max_open_conns", 25)
	v.SetDefault("sqlite.max_idle_conns", 5)
	v.SetDefault("sqlite.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("mongo.database", "expenses")
	v.SetDefault("mongo.collection", "expenses")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("receipts.backend", ReceiptsLocal)
	v.SetDefault("receipts.dir", "uploads")
	v.SetDefault("receipts.max_image_width", 2000)
	v.SetDefault("receipts.minio.bucket", "receipts")

	v.SetDefault("expenses.required_profile", "minimal")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

var envBindings = map[string]string{
	"server.port":               "PORT",
	"app.environment":           "APP_ENV",
	"storage.backend":           "STORAGE_BACKEND",
	"mongo.uri":                 "MONGODB_URI",
	"mongo.database":            "MONGODB_DATABASE",
	"postgres.url":              "DATABASE_URL",
	"sqlite.path":               "SQLITE_PATH",
	"redis.addr":                "REDIS_ADDR",
	"redis.password":            "REDIS_PASSWORD",
	"receipts.backend":          "RECEIPTS_BACKEND",
	"receipts.dir":              "UPLOAD_DIR",
	"receipts.minio.endpoint":   "S3_ENDPOINT",
	"receipts.minio.access_key": "S3_ACCESS_KEY",
	"receipts.minio.secret_key": "S3_SECRET_KEY",
	"receipts.minio.bucket":     "S3_BUCKET",
	"expenses.required_profile": "REQUIRED_PROFILE",
	"lark.app_id":               "LARK_APP_ID",
	"lark.app_secret":           "LARK_APP_SECRET",
	"lark.chat_id":              "LARK_CHAT_ID",
	"logger.level":              "LOG_LEVEL",
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Receipts.Backend = strings.ToLower(strings.TrimSpace(c.Receipts.Backend))
	c.Expenses.RequiredProfile = strings.ToLower(strings.TrimSpace(c.Expenses.RequiredProfile))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Storage.RetryDelay <= 0 {
		return fmt.Errorf("storage.retry_delay must be positive")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case BackendPostgres, BackendGorm:
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres.url (DATABASE_URL) is required for the %s backend", c.Storage.Backend)
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri (MONGODB_URI) is required for the mongo backend")
		}
		if c.Mongo.Database == "" {
			return fmt.Errorf("mongo.database is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Receipts.Backend {
	case ReceiptsLocal:
		if c.Receipts.Dir == "" {
			return fmt.Errorf("receipts.dir is required for local receipts")
		}
	case ReceiptsMinio:
		if c.Receipts.Minio.Endpoint == "" {
			return fmt.Errorf("receipts.minio.endpoint (S3_ENDPOINT) is required for minio receipts")
		}
		if c.Receipts.Minio.Bucket == "" {
			return fmt.Errorf("receipts.minio.bucket is required for minio receipts")
		}
	default:
		return fmt.Errorf("unknown receipts.backend %q", c.Receipts.Backend)
	}

	switch c.Expenses.RequiredProfile {
	case "minimal", "full":
	default:
		return fmt.Errorf("expenses.required_profile must be minimal or full, got %q", c.Expenses.RequiredProfile)
	}

	if c.Redis.Enabled() && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis.ttl must be positive when redis is enabled")
	}

	return nil
}
