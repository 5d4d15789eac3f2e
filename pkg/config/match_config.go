package config

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MatchSettings are operated from the back-office by writing the redis
// hash at cfgRedisKey. Fields absent from the hash keep their value.
type MatchSettings struct {
	// If false, no new search is accepted. Searches and calls already
	// running are left alone.
	IsMatchEnabled bool `redis:"isMatchEnabled"`

	// Coins debited from each participant for every minute of call.
	// A user needs at least this many coins to start a search.
	CoinsPerMinute uint `redis:"coinsPerMinute"`

	// Upper bound of a call handed to the room factory. The actual bound
	// of a call is lowered further by the balance of the poorer side.
	MaxCallMinutes uint `redis:"maxCallMinutes"`
}

var DefaultMatchSettings = MatchSettings{
	IsMatchEnabled: true,
	CoinsPerMinute: 10,
	MaxCallMinutes: 60,
}

type MatchConfig struct {
	settings     MatchSettings
	settingsLock sync.RWMutex

	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

const (
	// Update config with this interval.
	cfgUpdateInterval = 5 * time.Second

	// MatchConfig redis key.
	cfgRedisKey = "config"
)

func ProvideMatchConfig(redisClient *redis.Client, loggerFactory *infra.LoggerFactory) *MatchConfig {
	return &MatchConfig{
		settings:    DefaultMatchSettings,
		redisClient: redisClient,
		logger:      loggerFactory.Create("MatchConfig").Sugar(),
	}
}

// NewStaticMatchConfig never refreshes. Used when running without redis
// and by tests.
func NewStaticMatchConfig(settings MatchSettings) *MatchConfig {
	return &MatchConfig{
		settings: settings,
		logger:   zap.NewNop().Sugar(),
	}
}

func (c *MatchConfig) Settings() MatchSettings {
	c.settingsLock.RLock()
	defer c.settingsLock.RUnlock()
	return c.settings
}

func (c *MatchConfig) Set(settings MatchSettings) {
	c.settingsLock.Lock()
	defer c.settingsLock.Unlock()
	c.settings = settings
}

// Refresh reads the redis hash on top of the current settings.
func (c *MatchConfig) Refresh(ctx context.Context) error {
	next := c.Settings()
	if err := c.redisClient.HGetAll(ctx, cfgRedisKey).Scan(&next); err != nil {
		return err
	}

	if next != c.Settings() {
		c.logger.Infof("updated settings[%+v]", next)
	}
	c.Set(next)
	return nil
}

func (c *MatchConfig) Run(ctx context.Context) {
	if c.redisClient == nil {
		return
	}

	ticker := time.NewTicker(cfgUpdateInterval)
	defer ticker.Stop()

	for {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Errorf("err reading config from redis %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
