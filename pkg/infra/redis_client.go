package infra

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// ProvideRedisClient returns nil when running on the memory backend.
func ProvideRedisClient(env *Env, loggerFactory *LoggerFactory) *redis.Client {
	logger := loggerFactory.Create("RedisClient").Sugar()
	if env.StoreBackend == StoreBackendMemory {
		logger.Infof("store backend is memory, no redis")
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr: env.RedisHost,
		DB:   env.RedisDb,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			logger.Infof("redis connected to host[%v] db[%v]", env.RedisHost, env.RedisDb)
			return nil
		},
	})
}
