package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/gema-chat/internal/config"
)

const redisPingTimeout = 5 * time.Second

// ConnectRedis opens the client shared by the user-search cache and the event
// mirror. It returns a nil client when no URL is configured or when neither
// feature is enabled, and the service then runs uncached and in-process only.
func ConnectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	if cfg.SearchCacheTTL <= 0 && cfg.EventsChannel == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if options.ClientName == "" {
		options.ClientName = redisClientName(cfg)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}

func redisClientName(cfg config.Config) string {
	name := strings.ToLower(strings.Join(strings.Fields(cfg.AppName), "-"))
	if name == "" {
		name = "gema-chat"
	}
	if cfg.AppEnv != "" {
		name += "-" + cfg.AppEnv
	}
	return name
}
