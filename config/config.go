package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment Environment `mapstructure:"-"`

	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port" validate:"required,numeric"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

// EmbeddingConfig selects the embedding provider. Ingestion and serving must
// agree on all of it.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" validate:"oneof=openai hashing"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key" validate:"required_if=Provider openai"`
	BaseURL   string `mapstructure:"base_url" validate:"omitempty,url"`
	Dimension int    `mapstructure:"dimension" validate:"gt=0"`
}

type IndexConfig struct {
	Backend          string        `mapstructure:"backend" validate:"oneof=qdrant postgres sqlite memory"`
	Collection       string        `mapstructure:"collection" validate:"required"`
	QdrantHost       string        `mapstructure:"qdrant_host" validate:"required_if=Backend qdrant"`
	QdrantPort       int           `mapstructure:"qdrant_port" validate:"omitempty,gt=0"`
	QdrantAPIKey     string        `mapstructure:"qdrant_api_key"`
	QdrantTLS        bool          `mapstructure:"qdrant_tls"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

type DatabaseConfig struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"ssl_mode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RedisConfig enables request rate limiting when URL is set.
type RedisConfig struct {
	URL        string        `mapstructure:"url" validate:"omitempty,url"`
	RateLimit  int           `mapstructure:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type RecommendConfig struct {
	TopK         int `mapstructure:"top_k" validate:"gt=0"`
	DisplayCount int `mapstructure:"display_count" validate:"gt=0,ltefield=TopK"`
}

type IngestConfig struct {
	Dataset   string        `mapstructure:"dataset"`
	BatchSize int           `mapstructure:"batch_size" validate:"gt=0"`
	Delay     time.Duration `mapstructure:"delay" validate:"gte=0"`
}

// AdminConfig protects the ingestion endpoint. Leaving both passwords empty
// disables it.
type AdminConfig struct {
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret" validate:"required_with=Password PasswordHash"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	MaxUpload    int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

type StorageConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

// envBindings keeps the flat environment variable names used in deployment
// files.
var envBindings = map[string]string{
	"server.host":             "SERVER_HOST",
	"server.port":             "SERVER_PORT",
	"server.request_timeout":  "REQUEST_TIMEOUT",
	"server.allowed_origins":  "ALLOWED_ORIGINS",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
	"embedding.provider":      "EMBEDDING_PROVIDER",
	"embedding.model":         "EMBEDDING_MODEL",
	"embedding.api_key":       "OPENAI_API_KEY",
	"embedding.base_url":      "OPENAI_BASE_URL",
	"embedding.dimension":     "VECTOR_DIM",
	"index.backend":           "INDEX_BACKEND",
	"index.collection":        "INDEX_NAME",
	"index.qdrant_host":       "QDRANT_HOST",
	"index.qdrant_port":       "QDRANT_PORT",
	"index.qdrant_api_key":    "QDRANT_API_KEY",
	"index.qdrant_tls":        "QDRANT_TLS",
	"index.breaker_threshold": "INDEX_BREAKER_THRESHOLD",
	"index.breaker_timeout":   "INDEX_BREAKER_TIMEOUT",
	"database.host":           "DB_HOST",
	"database.port":           "DB_PORT",
	"database.user":           "DB_USER",
	"database.password":       "DB_PASSWORD",
	"database.name":           "DB_NAME",
	"database.ssl_mode":       "DB_SSL_MODE",
	"database.sqlite_path":    "SQLITE_PATH",
	"redis.url":               "REDIS_URL",
	"redis.rate_limit":        "RATE_LIMIT",
	"redis.rate_window":       "RATE_WINDOW",
	"recommend.top_k":         "TOP_K",
	"recommend.display_count": "DISPLAY_COUNT",
	"ingest.dataset":          "DATASET_PATH",
	"ingest.batch_size":       "BATCH_SIZE",
	"ingest.delay":            "BATCH_DELAY",
	"admin.username":          "ADMIN_USERNAME",
	"admin.password":          "ADMIN_PASSWORD",
	"admin.password_hash":     "ADMIN_PASSWORD_HASH",
	"admin.jwt_secret":        "JWT_SECRET",
	"admin.token_ttl":         "ADMIN_TOKEN_TTL",
	"admin.max_upload_bytes":  "ADMIN_MAX_UPLOAD_BYTES",
	"storage.region":          "AWS_REGION",
	"storage.endpoint":        "S3_ENDPOINT",
}

// secretBindings maps config keys to Docker secret file names.
var secretBindings = map[string]string{
	"embedding.api_key":    "openai_api_key",
	"index.qdrant_api_key": "qdrant_api_key",
	"database.user":        "db_user",
	"database.password":    "db_password",
	"admin.password":       "admin_password",
	"admin.password_hash":  "admin_password_hash",
	"admin.jwt_secret":     "jwt_secret",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("index.backend", "qdrant")
	v.SetDefault("index.collection", "recipes")
	v.SetDefault("index.qdrant_port", 6334)
	v.SetDefault("index.breaker_threshold", 5)
	v.SetDefault("index.breaker_timeout", 30*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "alchemorsel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "recipes.db")
	v.SetDefault("redis.rate_limit", 60)
	v.SetDefault("redis.rate_window", time.Minute)
	v.SetDefault("recommend.top_k", 30)
	v.SetDefault("recommend.display_count", 5)
	v.SetDefault("ingest.dataset", "data/recipes.csv")
	v.SetDefault("ingest.batch_size", 10)
	v.SetDefault("ingest.delay", time.Second)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.token_ttl", time.Hour)
	v.SetDefault("admin.max_upload_bytes", 32<<20)
}

// LoadConfig creates a new Config instance with values from defaults, an
// optional CONFIG_FILE, environment variables and secrets.
func LoadConfig() (*Config, error) {
	env := GetEnvironment()
	if env.LoadsDotEnv() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	for key, name := range envBindings {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := applySecrets(v, env); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Environment = env
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applySecrets reads Docker secrets. In production a secret always wins over
// the environment; elsewhere it only fills values left empty.
func applySecrets(v *viper.Viper, env Environment) error {
	for key, name := range secretBindings {
		value, err := readSecret(name)
		if err != nil {
			return err
		}
		if value == "" {
			if env.UsesSecretsOnly() {
				v.Set(key, "")
			}
			continue
		}
		if env.UsesSecretsOnly() || v.GetString(key) == "" {
			v.Set(key, value)
		}
	}
	return nil
}

// SecretsDir returns the directory holding Docker secrets.
func SecretsDir() string {
	if dir := os.Getenv("SECRETS_DIR"); dir != "" {
		return dir
	}
	return "/run/secrets"
}

// readSecret reads a Docker secret. A missing file is not an error.
func readSecret(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(SecretsDir(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// splitOrigins accepts both a list and a single comma separated value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

// Address returns host:port for the HTTP server.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// PostgresDSN builds the gorm postgres connection string.
func (c *Config) PostgresDSN() string {
	d := c.Database
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
