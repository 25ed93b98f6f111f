package configs

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Supabase SupabaseConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Alpaca   AlpacaConfig
	Chat     ChatConfig
	Backend  BackendConfig
	Health   HealthConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	WebRoot  string
}

// SupabaseConfig holds Supabase (auth + REST gateway) configuration
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	KongURL        string
}

// AuthConfig holds Auth Gate configuration
type AuthConfig struct {
	// FailOpen lets every page request through when auth is not configured.
	// Local development only.
	FailOpen   bool
	LoginPath  string
	SignupPath string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AlpacaConfig holds broker API configuration
type AlpacaConfig struct {
	PaperURL           string
	LiveURL            string
	RateLimitPerMinute int
	Timeout            time.Duration

	// Development credentials, used only when DATABASE_URL is not set
	PaperAPIKey    string
	PaperSecretKey string
	LiveAPIKey     string
	LiveSecretKey  string
}

// ChatConfig holds AI chat backend configuration
type ChatConfig struct {
	URL            string
	MessageTimeout time.Duration
}

// BackendConfig holds generic backend API configuration
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// HealthConfig holds upstream health probe configuration
type HealthConfig struct {
	Schedule string
	Timeout  time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "3000"),
			Env:      getEnv("GO_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
			WebRoot:  getEnv("WEB_ROOT", "./web"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", "http://localhost:54321"), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
			KongURL:        strings.TrimRight(getEnv("KONG_URL", "http://localhost:8000"), "/"),
		},
		Auth: AuthConfig{
			FailOpen:   getEnvBool("AUTH_FAIL_OPEN", false),
			LoginPath:  "/login",
			SignupPath: "/signup",
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "tradedesk-events"),
		},
		Alpaca: AlpacaConfig{
			PaperURL:           strings.TrimRight(getEnv("ALPACA_PAPER_URL", "https://paper-api.alpaca.markets"), "/"),
			LiveURL:            strings.TrimRight(getEnv("ALPACA_LIVE_URL", "https://api.alpaca.markets"), "/"),
			RateLimitPerMinute: getEnvInt("ALPACA_RATE_LIMIT_PER_MINUTE", 200),
			Timeout:            time.Duration(getEnvInt("ALPACA_TIMEOUT_SECONDS", 15)) * time.Second,
			PaperAPIKey:        getEnv("ALPACA_PAPER_API_KEY", ""),
			PaperSecretKey:     getEnv("ALPACA_PAPER_SECRET_KEY", ""),
			LiveAPIKey:         getEnv("ALPACA_LIVE_API_KEY", ""),
			LiveSecretKey:      getEnv("ALPACA_LIVE_SECRET_KEY", ""),
		},
		Chat: ChatConfig{
			URL:            strings.TrimRight(getEnv("AI_CHAT_API_URL", "http://localhost:8001"), "/"),
			MessageTimeout: 10 * time.Minute,
		},
		Backend: BackendConfig{
			URL:     strings.TrimRight(getEnv("BACKEND_API_URL", "http://localhost:8080"), "/"),
			Timeout: 30 * time.Second,
		},
		Health: HealthConfig{
			Schedule: getEnv("HEALTH_CHECK_SCHEDULE", "@every 30s"),
			Timeout:  5 * time.Second,
		},
	}
}

// AuthConfigured reports whether enough Supabase settings exist to verify sessions
func (s SupabaseConfig) AuthConfigured() bool {
	if s.JWTSecret != "" {
		return true
	}
	return s.URL != "" && s.AnonKey != ""
}

// IsProduction reports whether the server runs with GO_ENV=production
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
