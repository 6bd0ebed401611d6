package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Designer DesignerConfig `mapstructure:"designer"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Log      LogConfig      `mapstructure:"log"`
}

// LogConfig selects the slog handler. Format is "text" or "json".
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	CookieDomain   string   `mapstructure:"cookie_domain"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

// AuthConfig contains token signing keys and login throttling settings.
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ClamdConfig points at the clamd daemon used to scan uploads.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// ParserConfig describes the external CV parsing service.
type ParserConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DesignerConfig controls template designer sessions.
type DesignerConfig struct {
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	SaveLockTTL time.Duration `mapstructure:"save_lock_ttl"`
}

// WorkerConfig controls the background job server.
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	MaxRetry      int           `mapstructure:"max_retry"`
	ChromiumPath  string        `mapstructure:"chromium_path"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load merges defaults, an optional YAML file and environment variables, in
// increasing order of precedence. The file is craftcv.yaml in the working
// directory or ./config, or whatever CRAFTCV_CONFIG points at. A .env file is
// loaded into the environment first when present.
func Load() (*Config, error) {
	cfg, err := decode()
	if err != nil {
		return nil, err
	}
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)

	if err := validate(*cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDatabase decodes and validates only the database section, for tools
// such as cmd/admin that do not talk to the other services.
func LoadDatabase() (DatabaseConfig, error) {
	cfg, err := decode()
	if err != nil {
		return DatabaseConfig{}, err
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg.Database, nil
}

func decode() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := readConfigFile(v, os.Getenv("CRAFTCV_CONFIG")); err != nil {
		return nil, err
	}
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("craftcv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || (explicit == "" && errors.As(err, &notFound)) {
		return nil
	}
	return fmt.Errorf("read config file: %w", err)
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.max_upload_bytes", 10*1024*1024)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "craftcv")
	v.SetDefault("database.user", "craftcv")
	v.SetDefault("database.password", "craftcv")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "craftcv")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("clamd.addr", "tcp://localhost:3310")
	v.SetDefault("parser.base_url", "http://localhost:8001")
	v.SetDefault("parser.timeout", 60*time.Second)
	v.SetDefault("designer.session_ttl", 24*time.Hour)
	v.SetDefault("designer.save_lock_ttl", 30*time.Second)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.max_retry", 5)
	v.SetDefault("worker.render_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"api.cookie_domain":              "API_COOKIE_DOMAIN",
		"api.max_upload_bytes":           "API_MAX_UPLOAD_BYTES",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"redis.password":                 "REDIS_PASSWORD",
		"redis.db":                       "REDIS_DB",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"clamd.addr":                     "CLAMD_ADDR",
		"parser.base_url":                "PARSER_BASE_URL",
		"parser.timeout":                 "PARSER_TIMEOUT",
		"designer.session_ttl":           "DESIGNER_SESSION_TTL",
		"designer.save_lock_ttl":         "DESIGNER_SAVE_LOCK_TTL",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.max_retry":               "WORKER_MAX_RETRY",
		"worker.chromium_path":           "CHROMIUM_PATH",
		"worker.render_timeout":          "WORKER_RENDER_TIMEOUT",
		"log.level":                      "LOG_LEVEL",
		"log.format":                     "LOG_FORMAT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList 兼容以逗号分隔的单个环境变量。
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validate 汇总所有不合法的配置项后一起返回。
func validate(cfg Config) error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(cfg.API.Port > 0, "api.port must be positive")
	check(cfg.API.MaxUploadBytes > 0, "api.max_upload_bytes must be positive")
	check(cfg.Auth.AccessTokenTTL > 0 && cfg.Auth.RefreshTokenTTL > 0, "auth token ttls must be positive")
	check(cfg.Auth.AccessTokenTTL < cfg.Auth.RefreshTokenTTL, "auth.access_token_ttl must be shorter than the refresh ttl")

	if err := validateDatabase(cfg.Database); err != nil {
		errs = append(errs, err)
	}

	check(cfg.Redis.Host != "" && cfg.Redis.Port > 0, "redis host and port are required")
	check(cfg.Redis.DB >= 0, "redis db must not be negative")

	check(cfg.MinIO.Endpoint != "", "minio endpoint is required")
	check(cfg.MinIO.AccessKeyID != "" && cfg.MinIO.SecretAccessKey != "", "minio credentials are required")
	check(cfg.MinIO.Bucket != "", "minio bucket is required")

	check(cfg.Parser.BaseURL != "", "parser base url is required")
	check(cfg.Designer.SessionTTL > 0, "designer session ttl must be positive")
	check(cfg.Worker.Concurrency > 0, "worker concurrency must be positive")

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q is not text or json", cfg.Log.Format))
	}
	return errors.Join(errs...)
}

func validateDatabase(db DatabaseConfig) error {
	switch {
	case db.Host == "" || db.Port <= 0:
		return errors.New("database host and port are required")
	case db.Name == "" || db.User == "":
		return errors.New("database name and user are required")
	case db.Password == "":
		return errors.New("database password is required")
	case db.SSLMode == "":
		return errors.New("database sslmode is required")
	}
	return nil
}
