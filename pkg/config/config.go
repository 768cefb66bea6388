package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxPlaidPageSize is the largest page /transactions/get will return.
const MaxPlaidPageSize = 500

const (
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGigaChat = "gigachat"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Plaid     PlaidConfig
	LLM       LLMConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
	Logger    LoggerConfig
}

type LoggerConfig struct {
	Level       string
	Environment string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// DSN renders the keyword/value connection string pgx understands.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

type PlaidConfig struct {
	ClientID     string
	Secret       string
	Env          string // sandbox, development or production
	ClientName   string
	CountryCodes []string
}

type LLMConfig struct {
	Provider string // ollama, openai or gigachat
	Ollama   OllamaConfig
	OpenAI   OpenAIConfig
	GigaChat GigaChatConfig
}

type OllamaConfig struct {
	Model   string
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

type SyncConfig struct {
	LookbackDays int
	PageSize     int
	Workers      int
	QueueSize    int
	JobTimeout   time.Duration
	CronSpec     string
}

type TelemetryConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work the same way
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(getInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "finsight"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:        int32(getInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getInt("DB_MIN_CONNS", 0)),
			ConnMaxLifetime: time.Duration(getInt("DB_CONN_MAX_LIFETIME_MINUTES", 60)) * time.Minute,
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(getInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
			RefreshExp: time.Duration(getInt("JWT_REFRESH_EXPIRATION_HOURS", 168)) * time.Hour,
		},
		Plaid: PlaidConfig{
			ClientID:     getEnv("PLAID_CLIENT_ID", ""),
			Secret:       getEnv("PLAID_SECRET", ""),
			Env:          getEnv("PLAID_ENV", "sandbox"),
			ClientName:   getEnv("PLAID_CLIENT_NAME", "Finance AI App"),
			CountryCodes: splitList(getEnv("PLAID_COUNTRY_CODES", "US")),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Ollama: OllamaConfig{
				Model:   getEnv("OLLAMA_MODEL", "llama3"),
				BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			GigaChat: GigaChatConfig{
				APIKey:             getEnv("GIGACHAT_API_KEY", ""),
				Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
				Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
				InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "false") == "true",
			},
		},
		Sync: SyncConfig{
			LookbackDays: getInt("SYNC_LOOKBACK_DAYS", 730),
			PageSize:     getInt("SYNC_PAGE_SIZE", MaxPlaidPageSize),
			Workers:      getInt("SYNC_WORKERS", 2),
			QueueSize:    getInt("SYNC_QUEUE_SIZE", 64),
			JobTimeout:   time.Duration(getInt("SYNC_JOB_TIMEOUT_SECONDS", 300)) * time.Second,
			CronSpec:     os.Getenv("SYNC_CRON"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "finsight"),
			Environment:  getEnv("APP_ENV", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("APP_ENV", "development"),
		},
	}
	if _, set := os.LookupEnv("SYNC_CRON"); !set {
		cfg.Sync.CronSpec = "0 3 * * *"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOllama, ProviderGigaChat:
	case ProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when using OpenAI provider")
		}
	default:
		return fmt.Errorf("unknown LLM provider: %s (must be ollama, openai or gigachat)", c.LLM.Provider)
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > MaxPlaidPageSize {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and %d, got %d", MaxPlaidPageSize, c.Sync.PageSize)
	}
	if c.Sync.LookbackDays < 1 {
		return fmt.Errorf("SYNC_LOOKBACK_DAYS must be positive, got %d", c.Sync.LookbackDays)
	}
	if c.Sync.Workers < 1 {
		c.Sync.Workers = 1
	}
	return nil
}

// CORSOriginList splits the comma separated CORS_ORIGINS value.
func (s ServerConfig) CORSOriginList() []string {
	return splitList(s.CORSOrigins)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
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
