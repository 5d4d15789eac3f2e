package presence

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"time"

	"github.com/go-redis/redis/v8"
)

// Record is the current liveness of a user. It's upserted, never deleted
// and keeps no history.
type Record struct {
	UserId string `json:"userId"`

	Online bool `json:"online"`

	// True between room allocation and call teardown.
	InCall bool `json:"inCall"`

	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`

	Lang string `json:"lang,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// Attrs is what a client reports with a heartbeat.
type Attrs struct {
	Online bool     `json:"online"`
	Lang   string   `json:"lang,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// IsReachable is true for a user we can hand a room to right now.
func (r *Record) IsReachable(now time.Time, ttl time.Duration) bool {
	return r != nil &&
		r.Online &&
		!r.InCall &&
		!r.LastHeartbeatAt.Before(now.Add(-ttl))
}

type Store interface {
	// Heartbeat upserts the record of userId with attrs and the current
	// time. InCall is left untouched.
	Heartbeat(ctx context.Context, userId string, attrs Attrs) error

	// Get returns nil for a user who never sent a heartbeat.
	Get(ctx context.Context, userId string) (*Record, error)

	SetInCall(ctx context.Context, inCall bool, userIds ...string) error
}

func ProvideStore(env *infra.Env, redisClient *redis.Client, clk clock.Clock) Store {
	if env.StoreBackend == infra.StoreBackendMemory {
		return NewMemoryStore(clk)
	}
	return NewRedisStore(redisClient, clk)
}
