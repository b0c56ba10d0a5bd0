package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AdminToken  string

	// TrustedProxies lists proxy addresses or CIDRs whose forwarding
	// headers are believed when keying per-client limits.
	TrustedProxies []string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis       RedisConfig
	CRM         CRMConfig
	Geolocation GeolocationConfig
	Lead        LeadConfig
	Attribution AttributionConfig
	Rotation    RotationConfig
	RateLimit   RateLimitConfig
	Scheduler   SchedulerConfig

	FormsConfigPath string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type CRMConfig struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	UserAgent  string
}

type GeolocationConfig struct {
	Endpoint string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type LeadConfig struct {
	DefaultCountryCode string
	CaptureSource      string
}

type AttributionConfig struct {
	CookiePrefix string
	TTL          time.Duration
	MergePolicy  string
	IncludeTerm  bool
	SecureCookie bool
}

type RotationConfig struct {
	LockTTL time.Duration
}

type RateLimitConfig struct {
	Enabled         bool
	SubmissionRate  float64
	SubmissionBurst int
}

type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	JobTimeout time.Duration
	Jobs       []string
}

const (
	DefaultCountryCode = "55"
	DefaultVersion     = "1.0.0"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "leadbridge"),
		AppVersion:        getenv("APP_VERSION", DefaultVersion),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AdminToken:        strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		TrustedProxies:    getenvList("TRUSTED_PROXIES"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "leadbridge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		CRM: CRMConfig{
			BaseURL:    strings.TrimRight(strings.TrimSpace(getenv("CRM_BASE_URL", "")), "/"),
			APIVersion: getenv("CRM_API_VERSION", "v1"),
			Timeout:    getenvDuration("CRM_TIMEOUT", 30*time.Second),
			UserAgent:  getenv("CRM_USER_AGENT", "iaRe CRM WordPress Plugin/"+DefaultVersion),
		},
		Geolocation: GeolocationConfig{
			Endpoint: getenv("GEOLOCATION_ENDPOINT", "http://ip-api.com/json/"),
			Timeout:  getenvDuration("GEOLOCATION_TIMEOUT", 10*time.Second),
			CacheTTL: getenvDuration("GEOLOCATION_CACHE_TTL", 72*time.Hour),
		},
		Lead: LeadConfig{
			DefaultCountryCode: getenv("LEAD_DEFAULT_COUNTRY_CODE", DefaultCountryCode),
			CaptureSource:      getenv("LEAD_CAPTURE_SOURCE", "wordpress"),
		},
		Attribution: AttributionConfig{
			CookiePrefix: getenv("ATTRIBUTION_COOKIE_PREFIX", "iare_crm_"),
			TTL:          getenvDuration("ATTRIBUTION_TTL", 30*24*time.Hour),
			MergePolicy:  strings.ToLower(getenv("ATTRIBUTION_MERGE_POLICY", "replace")),
			IncludeTerm:  getenvBool("ATTRIBUTION_INCLUDE_TERM", false),
			SecureCookie: environment == "production",
		},
		Rotation: RotationConfig{
			LockTTL: getenvDuration("ROTATION_LOCK_TTL", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", true),
			SubmissionRate:  getenvFloat("RATE_LIMIT_SUBMISSION_RATE", 1),
			SubmissionBurst: getenvInt("RATE_LIMIT_SUBMISSION_BURST", 10),
		},
		Scheduler: SchedulerConfig{
			Enabled:    getenvBool("SCHEDULER_ENABLED", true),
			Interval:   getenvDuration("SCHEDULER_INTERVAL", 30*time.Minute),
			JobTimeout: getenvDuration("SCHEDULER_JOB_TIMEOUT", time.Minute),
			Jobs:       getenvList("SCHEDULER_JOBS"),
		},
		FormsConfigPath: getenv("FORMS_CONFIG_PATH", "."),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("30s") or plain seconds ("30").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
