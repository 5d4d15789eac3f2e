package queue

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"

	"github.com/go-redis/redis/v8"
)

// Store holds the waiting tickets. Tickets returned by a store are
// copies, mutating them does not change the store.
type Store interface {
	// Enqueue removes any waiting ticket of the same user and inserts
	// ticket. Re-entry is not an error.
	Enqueue(ctx context.Context, ticket *Ticket) error

	// FindCandidate returns the oldest waiting ticket compatible with
	// ticket, excluding ticket's own user, or nil. Stale tickets met
	// during the scan are removed.
	FindCandidate(ctx context.Context, ticket *Ticket) (*Ticket, error)

	// Remove removes the waiting ticket of userId and returns it, or nil
	// if there was none.
	Remove(ctx context.Context, userId UserId) (*Ticket, error)

	// Claim removes all given tickets in one atomic step if every one of
	// them is still the current waiting ticket of its user. Otherwise it
	// removes nothing and returns false. At most one of two concurrent
	// claims over a shared ticket can succeed.
	Claim(ctx context.Context, tickets ...*Ticket) (bool, error)

	// Restore puts a claimed ticket back with its original EnqueuedAt
	// unless its user has enqueued again meanwhile.
	Restore(ctx context.Context, ticket *Ticket) (bool, error)

	Get(ctx context.Context, userId UserId) (*Ticket, error)

	Len(ctx context.Context) (int, error)

	// Sweep removes every stale ticket and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

func ProvideStore(env *infra.Env, cfg *config.Config, redisClient *redis.Client, clk clock.Clock, loggerFactory *infra.LoggerFactory) Store {
	if env.StoreBackend == infra.StoreBackendMemory {
		return NewMemoryStore(clk, cfg.TicketStalePeriod(), loggerFactory)
	}
	return NewRedisStore(redisClient, clk, cfg.TicketStalePeriod(), loggerFactory)
}
