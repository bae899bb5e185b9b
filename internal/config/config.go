package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory  = "memory"
	BackendSurreal = "surreal"
	BackendMongo   = "mongo"
)

// Config holds all configuration for the application.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	StoreBackend string

	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string

	MongoURI string
	MongoDB  string

	// JWTSecret enables bearer token verification. Empty means callers are
	// trusted to state their own user id.
	JWTSecret string

	WriteTimeout     time.Duration
	MaxMessageLength int
	RateLimit        float64
	RateBurst        int
	SanitizeHTML     bool
	AllowedOrigins   []string
}

// New loads a .env file if present, then reads configuration from the
// environment.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() *Config {
	return &Config{
		Port:             getenv("PORT", "8080"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
		StoreBackend:     strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		DBUrl:            os.Getenv("SURREAL_URL"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getenv("MONGO_DB", "chatterbox"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		WriteTimeout:     getDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		MaxMessageLength: getInt("MAX_MESSAGE_LENGTH", 4096),
		RateLimit:        getFloat("WS_RATE_LIMIT", 20),
		RateBurst:        getInt("WS_RATE_BURST", 40),
		SanitizeHTML:     getBool("SANITIZE_HTML", false),
		AllowedOrigins:   getList("ALLOWED_ORIGINS"),
	}
}

// Validate reports every missing setting for the selected backend.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendMemory:
	case BackendSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal backend"))
		}
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("WS_WRITE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// AuthEnabled reports whether bearer tokens are verified.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
