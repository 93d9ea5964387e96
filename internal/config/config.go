// Package config reads the console's settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/live"
	"github.com/ukydev/fleet-console/internal/persist"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Live transports.
const (
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

// Config holds every setting of the console.
type Config struct {
	Env         string
	APIBaseURL  string
	HTTPTimeout time.Duration

	LiveURL         string
	LiveTransport   string
	MQTTBroker      string
	MQTTTopicPrefix string

	SessionBackend string
	SessionFile    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MongoURI       string
	MongoDB        string

	LogLevel  string
	LogFormat string
	LogCaller bool
}

// Load reads the configuration. Outside APP_ENV=local the .env file at path is
// ignored; a missing file is not an error.
func Load(path string) (Config, error) {
	if GetEnv("APP_ENV", "local") == "local" && path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := Config{
		Env:         GetEnv("APP_ENV", "local"),
		APIBaseURL:  GetEnv("API_BASE_URL", "http://localhost:8081/api"),
		HTTPTimeout: GetEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		LiveURL:         GetEnv("LIVE_URL", "ws://localhost:8081/live"),
		LiveTransport:   GetEnv("LIVE_TRANSPORT", TransportWebSocket),
		MQTTBroker:      GetEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTTopicPrefix: GetEnv("MQTT_TOPIC_PREFIX", "fleet/events"),

		SessionBackend: GetEnv("SESSION_BACKEND", BackendFile),
		SessionFile:    GetEnv("SESSION_FILE", defaultSessionFile()),
		RedisAddr:      GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  GetEnv("REDIS_PASSWORD", ""),
		RedisDB:        GetEnvAsInt("REDIS_DB", 0),
		MongoURI:       GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        GetEnv("MONGO_DB", "fleet_console"),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "text"),
		LogCaller: GetEnvAsBool("LOG_CALLER", false),
	}
	return cfg, cfg.Validate()
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".fleet-console", "session.json")
	}
	return filepath.Join(home, ".fleet-console", "session.json")
}

// Validate rejects unknown backends, transports and log settings.
func (c Config) Validate() error {
	switch c.SessionBackend {
	case BackendMemory, BackendFile, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.LiveTransport {
	case TransportWebSocket, TransportMQTT:
	default:
		return fmt.Errorf("unknown LIVE_TRANSPORT %q", c.LiveTransport)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.HTTPTimeout < 0 {
		return errors.New("HTTP_TIMEOUT must not be negative")
	}
	return nil
}

// ConfigureLogger applies the level, format and caller reporting to l.
func (c Config) ConfigureLogger(l *logrus.Logger) {
	l.SetReportCaller(c.LogCaller)
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		l.SetLevel(level)
	}
	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// OpenStorage opens the configured session backend.
func (c Config) OpenStorage(ctx context.Context) (persist.Storage, error) {
	switch c.SessionBackend {
	case BackendMemory:
		return persist.NewMemoryStorage(), nil
	case BackendFile:
		return persist.NewFileStorage(c.SessionFile), nil
	case BackendRedis:
		return persist.NewRedisStorage(ctx, persist.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   "fleet-console:",
		})
	case BackendMongo:
		return persist.NewMongoStorage(ctx, c.MongoURI, c.MongoDB, "fleet-console")
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
}

// Transport builds the configured live transport.
func (c Config) Transport(log logrus.FieldLogger) live.Transport {
	if c.LiveTransport == TransportMQTT {
		return live.NewMQTTTransport(c.MQTTBroker, c.MQTTTopicPrefix, log)
	}
	return live.NewWebSocketTransport(c.LiveURL, log)
}

// GetEnv returns the variable key, or defaultValue when it is unset or empty.
func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid integer value, using default: %d", defaultValue)
		return defaultValue
	}
	return value
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid boolean value, using default: %t", defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsDuration accepts Go durations ("45s") or plain seconds ("45").
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	logrus.WithField("key", key).Warnf("Invalid duration value, using default: %s", defaultValue)
	return defaultValue
}
