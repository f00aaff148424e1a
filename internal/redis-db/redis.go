package redis_db

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ParseRedisURL accepts both bare "host:port" addresses (docker compose
// style) and full redis:// URLs with credentials.
func ParseRedisURL(dns string) (*redis.Options, error) {
	if dns == "" {
		return nil, errors.New("redis dns is empty")
	}

	if strings.HasPrefix(dns, "redis://") || strings.HasPrefix(dns, "rediss://") {
		return redis.ParseURL(dns)
	}

	return &redis.Options{Addr: dns}, nil
}

type RedisClient struct {
	client redis.UniversalClient
}

func NewRedisClient(dns string) (*RedisClient, error) {
	opts, err := ParseRedisURL(dns)
	if err != nil {
		return nil, err
	}
	return &RedisClient{client: redis.NewClient(opts)}, nil
}

func (r *RedisClient) Client() redis.UniversalClient {
	return r.client
}
