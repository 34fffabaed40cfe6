package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Config holds application configuration values
type Config struct {
	ServerPort     string
	JWTSecret      string
	JWTExpiration  time.Duration
	MetadataDbDir  string
	MetadataDbFile string
	Debug          bool

	ModelsFile  string
	WatchModels bool

	CacheTTL  time.Duration
	CacheSize int

	WebhookWorkers   int
	WebhookQueueSize int
	WebhookTimeout   time.Duration

	NatsURL            string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	production := os.Getenv("APP_ENV") == "production"

	// Attempt to load .env file if in development environment (skip in production)
	if !production {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}
	logger.Refresh()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("JWT_EXPIRATION_HOURS", 24)
	v.SetDefault("DATABASE_DIRECTORY", "data")
	v.SetDefault("DATABASE_DIRECTORY_FILE", "nebula.db")
	v.SetDefault("APP_DEBUG", !production)
	v.SetDefault("MODELS_FILE", "")
	v.SetDefault("WATCH_MODELS", false)
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("CACHE_SIZE", 1024)
	v.SetDefault("WEBHOOK_WORKERS", 4)
	v.SetDefault("WEBHOOK_QUEUE_SIZE", 256)
	v.SetDefault("WEBHOOK_TIMEOUT_SECONDS", 10)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 600)

	// --- Validation and Parsing ---
	// Critical: Ensure JWT Secret is set
	jwtSecret := v.GetString("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable must be set")
	}
	if jwtSecret == "!!replace_this_with_a_real_secret_key!!" {
		customLog.Warnln("WARNING: JWT_SECRET is set to the default placeholder!")
	}

	jwtExpHours := v.GetInt("JWT_EXPIRATION_HOURS")
	if jwtExpHours <= 0 {
		customLog.Warnf("Invalid JWT_EXPIRATION_HOURS '%s'. Using default 24h.", v.GetString("JWT_EXPIRATION_HOURS"))
		jwtExpHours = 24
	}

	cfg := &Config{
		ServerPort:         strings.TrimPrefix(v.GetString("SERVER_PORT"), ":"),
		JWTSecret:          jwtSecret,
		JWTExpiration:      time.Hour * time.Duration(jwtExpHours),
		MetadataDbDir:      v.GetString("DATABASE_DIRECTORY"),
		MetadataDbFile:     v.GetString("DATABASE_DIRECTORY_FILE"),
		Debug:              v.GetBool("APP_DEBUG"),
		ModelsFile:         v.GetString("MODELS_FILE"),
		WatchModels:        v.GetBool("WATCH_MODELS"),
		CacheTTL:           seconds(v.GetInt("CACHE_TTL_SECONDS"), 300),
		CacheSize:          positive(v.GetInt("CACHE_SIZE"), 1024),
		WebhookWorkers:     positive(v.GetInt("WEBHOOK_WORKERS"), 4),
		WebhookQueueSize:   positive(v.GetInt("WEBHOOK_QUEUE_SIZE"), 256),
		WebhookTimeout:     seconds(v.GetInt("WEBHOOK_TIMEOUT_SECONDS"), 10),
		NatsURL:            v.GetString("NATS_URL"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RateLimitPerMinute: max(v.GetInt("RATE_LIMIT_PER_MINUTE"), 0),
	}

	customLog.Printf("Configuration loaded successfully. Port: %s, JWT Exp: %v, Debug: %v", cfg.ServerPort, cfg.JWTExpiration, cfg.Debug)
	return cfg, nil
}

func positive(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

func seconds(n, fallback int) time.Duration {
	return time.Duration(positive(n, fallback)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
