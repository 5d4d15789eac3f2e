package config

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMatchConfigRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := ProvideMatchConfig(client, infra.NewNopLoggerFactory())

	t.Run("keeps defaults when hash is missing", func(t *testing.T) {
		if err := cfg.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if cfg.Settings() != DefaultMatchSettings {
			t.Fatalf("expected defaults, got %+v", cfg.Settings())
		}
	})

	t.Run("overrides present fields only", func(t *testing.T) {
		mr.HSet(cfgRedisKey, "coinsPerMinute", "25", "isMatchEnabled", "0")

		if err := cfg.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		got := cfg.Settings()
		if got.CoinsPerMinute != 25 {
			t.Fatalf("expected 25 coins per minute, got %d", got.CoinsPerMinute)
		}
		if got.IsMatchEnabled {
			t.Fatalf("expected matching disabled")
		}
		if got.MaxCallMinutes != DefaultMatchSettings.MaxCallMinutes {
			t.Fatalf("expected max call minutes untouched, got %d", got.MaxCallMinutes)
		}
	})

	t.Run("bad value keeps previous settings", func(t *testing.T) {
		before := cfg.Settings()
		mr.HSet(cfgRedisKey, "maxCallMinutes", "forever")

		if err := cfg.Refresh(context.Background()); err == nil {
			t.Fatalf("expected scan error")
		}
		if cfg.Settings() != before {
			t.Fatalf("expected settings unchanged, got %+v", cfg.Settings())
		}
	})
}
