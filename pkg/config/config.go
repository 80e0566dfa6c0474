package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the scanner
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage
	Store    StoreConfig
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	KIS      KISConfig
	Naver    NaverConfig
	Telegram TelegramConfig

	// Scanner tuning
	Scanner ScannerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// StoreConfig selects the price history backend
type StoreConfig struct {
	Driver     string // sqlite, postgres
	SQLitePath string
	DataDir    string // 스냅샷/리포트 저장 경로
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// KISConfig holds KIS (한국투자증권) API configuration
type KISConfig struct {
	AppKey     string
	AppSecret  string
	BaseURL    string
	IsVirtual  bool // 모의투자 여부
	MasterURL  string
	RatePerSec int // 프로세스 로컬 요청 상한 (0 = 제한 없음)
}

// NaverConfig holds Naver Search API configuration
type NaverConfig struct {
	SearchURL    string
	ClientID     string
	ClientSecret string
}

// TelegramConfig holds bot delivery settings
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// ScannerConfig holds pipeline parameters
type ScannerConfig struct {
	TopN               int
	ReentryLower       int
	ReentryUpper       int
	CacheToleranceDays int
	FetchWorkers       int
	FetchDelay         time.Duration
	MinuteInterval     string
	MinuteCandles      int
	ScanSchedule       string // cron (seconds 포함)
	ScanTimezone       string
	DefaultPlatform    string
}

const (
	// RealBaseURL is the KIS production endpoint
	RealBaseURL = "https://openapi.koreainvestment.com:9443"
	// VirtualBaseURL is the KIS paper-trading endpoint
	VirtualBaseURL = "https://openapivts.koreainvestment.com:29443"
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	isVirtual := getEnvAsBool("KIS_IS_VIRTUAL", false)
	defaultBaseURL := RealBaseURL
	if isVirtual {
		defaultBaseURL = VirtualBaseURL
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", filepath.Join(dataDir, "stock_scanner.db")),
			DataDir:    dataDir,
		},

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// External APIs
		KIS: KISConfig{
			AppKey:     getEnv("KIS_APP_KEY", ""),
			AppSecret:  getEnv("KIS_APP_SECRET", ""),
			BaseURL:    getEnv("KIS_BASE_URL", defaultBaseURL),
			IsVirtual:  isVirtual,
			MasterURL:  getEnv("KIS_MASTER_URL", "https://new.real.download.dws.co.kr/common/master"),
			RatePerSec: getEnvAsInt("KIS_RATE_PER_SEC", 15),
		},

		Naver: NaverConfig{
			SearchURL:    getEnv("NAVER_SEARCH_URL", "https://openapi.naver.com/v1/search/news.json"),
			ClientID:     getEnv("NAVER_CLIENT_ID", ""),
			ClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),
		},

		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},

		Scanner: ScannerConfig{
			TopN:               getEnvAsInt("TOP_N", 100),
			ReentryLower:       getEnvAsInt("REENTRY_LOWER", 51),
			ReentryUpper:       getEnvAsInt("REENTRY_UPPER", 100),
			CacheToleranceDays: getEnvAsInt("CACHE_TOLERANCE_DAYS", 7),
			FetchWorkers:       getEnvAsInt("FETCH_WORKERS", 5),
			FetchDelay:         getEnvAsDuration("FETCH_DELAY", "50ms"),
			MinuteInterval:     getEnv("MINUTE_INTERVAL", "30"),
			MinuteCandles:      getEnvAsInt("MINUTE_CANDLES", 30),
			ScanSchedule:       getEnv("SCAN_SCHEDULE", "0 20 15 * * 1-5"),
			ScanTimezone:       getEnv("SCAN_TIMEZONE", "Asia/Seoul"),
			DefaultPlatform:    getEnv("DEFAULT_PLATFORM", "telegram"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite store")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: sqlite, postgres")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	s := c.Scanner
	if s.ReentryLower < 1 || s.ReentryUpper < s.ReentryLower {
		return fmt.Errorf("reentry band must satisfy 1 <= REENTRY_LOWER <= REENTRY_UPPER (got %d-%d)",
			s.ReentryLower, s.ReentryUpper)
	}
	if s.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1")
	}
	if s.TopN < 1 {
		return fmt.Errorf("TOP_N must be at least 1")
	}
	if s.CacheToleranceDays < 0 {
		return fmt.Errorf("CACHE_TOLERANCE_DAYS must not be negative")
	}

	return nil
}

// Location returns the scan timezone, falling back to a fixed KST offset
// when the zoneinfo database is unavailable.
func (s ScannerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.ScanTimezone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
