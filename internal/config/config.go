package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the API server configuration.
type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ReportCacheTTLSeconds int
	AllowPublicRegister   bool
}

// ClientConfig drives the bioclinics command-line client.
type ClientConfig struct {
	APIBaseURL         string
	SessionFile        string
	SessionRedisAddr   string
	HTTPTimeoutSeconds int
	SearchDebounceMS   int
}

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() {
	if err := godotenv.Load(".env"); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[config] WARN: could not read .env: %v", err)
		}
		return
	}
	log.Println("[config] loaded environment variables from .env")
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:                  getEnv("PORT", "3000"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AutoMigrate:           getBool("DB_AUTO_MIGRATE", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ReportCacheTTLSeconds: getPositiveInt("REPORT_CACHE_TTL_SECONDS", 30),
		AllowPublicRegister:   getBool("ALLOW_PUBLIC_REGISTER", true),
	}
}

func LoadClient() ClientConfig {
	sessionFile := os.Getenv("BIOCLINICS_SESSION_FILE")
	if sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		sessionFile = filepath.Join(dir, "bioclinics", "session.json")
	}

	return ClientConfig{
		APIBaseURL:         strings.TrimRight(getEnv("BIOCLINICS_API_URL", "http://127.0.0.1:3000"), "/"),
		SessionFile:        sessionFile,
		SessionRedisAddr:   os.Getenv("BIOCLINICS_SESSION_REDIS_ADDR"),
		HTTPTimeoutSeconds: getPositiveInt("BIOCLINICS_HTTP_TIMEOUT_SECONDS", 15),
		SearchDebounceMS:   getPositiveInt("BIOCLINICS_SEARCH_DEBOUNCE_MS", 450),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
