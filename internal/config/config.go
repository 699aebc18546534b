package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	RedisURL          string
	NATSURL           string
	EventsChannel     string
	JWTSecret         string
	SearchCacheTTL    time.Duration
	WSSendBuffer      int
	WSPingInterval    time.Duration
	ChatPageSize      int
	MessagesPerMinute int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA_CHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "gema")
	v.SetDefault("search.cache_ttl", "1m")
	v.SetDefault("ws.send_buffer", 32)
	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("chat.page_size", 50)
	v.SetDefault("rate.messages_per_minute", 120)

	searchTTL, err := parseDuration(v, "search.cache_ttl", "1m")
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := parseDuration(v, "ws.ping_interval", "30s")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		EventsChannel:     v.GetString("events.channel"),
		JWTSecret:         v.GetString("jwt.secret"),
		SearchCacheTTL:    searchTTL,
		WSSendBuffer:      v.GetInt("ws.send_buffer"),
		WSPingInterval:    pingInterval,
		ChatPageSize:      v.GetInt("chat.page_size"),
		MessagesPerMinute: v.GetInt("rate.messages_per_minute"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.WSSendBuffer <= 0 {
		cfg.WSSendBuffer = 32
	}

	if cfg.ChatPageSize <= 0 || cfg.ChatPageSize > 100 {
		cfg.ChatPageSize = 50
	}

	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = 120
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		raw = fallback
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
