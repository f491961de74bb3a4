package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Backend struct {
		WebSocketURL string // base ws:// or wss:// URL of the event endpoint
		RESTBaseURL  string // base URL for acknowledgment calls
	}
	Transport struct {
		HeartbeatInterval time.Duration
		MaxReconnects     int
		SendQueueSize     int
	}
	Stream struct {
		MaxRetries int
		BaseDelay  time.Duration
		MaxDelay   time.Duration
	}
	Alerts struct {
		MaxQueueSize  int
		DedupCacheCap int
		DedupSweep    time.Duration
		AutoClose     time.Duration // 0 disables auto-dismiss
	}
	Kafka struct {
		Broker  string // empty disables the Kafka alert source
		Topic   string
		GroupID string
	}
	Telegram struct {
		BotToken string // empty disables escalation
		ChatID   int64
	}
	Sound struct {
		AssetDir string // empty disables the decoded-asset strategy
	}
	API struct {
		Port string
	}
	Store struct {
		Path string
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.Backend.WebSocketURL = os.Getenv("BACKEND_WS_URL")
	cfg.Backend.RESTBaseURL = os.Getenv("BACKEND_REST_URL")

	cfg.Transport.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", 25*time.Second)
	cfg.Transport.MaxReconnects = envInt("MAX_RECONNECT_ATTEMPTS", 10)
	cfg.Transport.SendQueueSize = envInt("SEND_QUEUE_SIZE", 50)

	cfg.Stream.MaxRetries = envInt("STREAM_MAX_RETRIES", 5)
	cfg.Stream.BaseDelay = envDuration("STREAM_BASE_DELAY", time.Second)
	cfg.Stream.MaxDelay = envDuration("STREAM_MAX_DELAY", 30*time.Second)

	cfg.Alerts.MaxQueueSize = envInt("ALERT_QUEUE_SIZE", 10)
	cfg.Alerts.DedupCacheCap = envInt("ALERT_DEDUP_CAP", 100)
	cfg.Alerts.DedupSweep = envDuration("ALERT_DEDUP_SWEEP", 5*time.Minute)
	cfg.Alerts.AutoClose = envDuration("ALERT_AUTO_CLOSE", 0)

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}

	cfg.Sound.AssetDir = os.Getenv("SOUND_ASSET_DIR")
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.Store.Path = os.Getenv("STORE_PATH")
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Backend.WebSocketURL == "" {
		missing = append(missing, "BACKEND_WS_URL")
	}
	if cfg.Backend.RESTBaseURL == "" {
		missing = append(missing, "BACKEND_REST_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "detection_alerts"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "alert-console"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":9290"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "console.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
