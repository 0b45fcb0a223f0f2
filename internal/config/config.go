package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	WebRoot string

	// DBDriver: postgres / sqlite
	DBDriver    string
	PostgresDSN string
	SQLitePath  string
	RedisAddr   string

	CronSpec     string
	StartupDelay time.Duration

	FetchTimeout    time.Duration
	FetchMaxEntries int
	FetchWorkers    int

	// CatalogPath 为空时使用内置的 catalog.yaml
	CatalogPath string

	KafkaBrokers []string
	KafkaTopic   string
}

func Load() *Config {
	// .env 可选，不存在时忽略
	_ = godotenv.Load()

	postgresDSN := getEnv("POSTGRES_DSN", os.Getenv("DATABASE_URL"))
	defaultDriver := "sqlite"
	if postgresDSN != "" {
		defaultDriver = "postgres"
	}

	cfg := &Config{
		AppPort:         getEnv("APP_PORT", "9000"),
		WebRoot:         getEnv("WEB_ROOT", ""),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", defaultDriver)),
		PostgresDSN:     postgresDSN,
		SQLitePath:      getEnv("SQLITE_PATH", "pressehub.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		CronSpec:        getEnv("CRON_SPEC", "@every 15m"),
		StartupDelay:    getDuration("STARTUP_DELAY", 15*time.Second),
		FetchTimeout:    getDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxEntries: getInt("FETCH_MAX_ENTRIES", 20),
		FetchWorkers:    getInt("FETCH_WORKERS", 4),
		CatalogPath:     getEnv("CATALOG_PATH", ""),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "pressehub.runs"),
	}

	log.Printf("config loaded: port=%s db=%s cron=%q workers=%d", cfg.AppPort, cfg.DBDriver, cfg.CronSpec, cfg.FetchWorkers)
	return cfg
}

// DSN 返回当前驱动对应的连接串
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.PostgresDSN
	}
	return c.SQLitePath
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("warn: invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
		log.Printf("warn: invalid %s=%q, using %s", key, v, def)
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
