package queue

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisStoreAndClient(t *testing.T, clk clock.Clock) (*RedisStore, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, clk, testStalePeriod, infra.NewNopLoggerFactory()), client
}

func TestRedisStoreBrokenMembers(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	searcher := func(t *testing.T, clk clock.Clock) *Ticket {
		t.Helper()
		ticket, err := NewTicket("me", openCriteria, Profile{}, clk.Now())
		if err != nil {
			t.Fatalf("new ticket: %v", err)
		}
		return ticket
	}

	t.Run("member without ticket is pruned", func(t *testing.T) {
		clk := clock.NewManual(start)
		s, client := newRedisStoreAndClient(t, clk)
		client.ZAdd(ctx, waitingRedisKey, &redis.Z{Score: float64(start.UnixMilli()), Member: "ghost"})

		got, err := s.FindCandidate(ctx, searcher(t, clk))
		if err != nil || got != nil {
			t.Fatalf("expected no candidate, got %+v err %v", got, err)
		}
		if n, err := s.Len(ctx); err != nil || n != 0 {
			t.Fatalf("expected empty waiting set, got %d err %v", n, err)
		}
	})

	t.Run("prune keeps a user who enqueued again", func(t *testing.T) {
		clk := clock.NewManual(start)
		s, _ := newRedisStoreAndClient(t, clk)
		ticket, err := NewTicket("u1", openCriteria, Profile{}, clk.Now())
		if err != nil {
			t.Fatalf("new ticket: %v", err)
		}
		if err := s.Enqueue(ctx, ticket); err != nil {
			t.Fatalf("enqueue: %v", err)
		}

		ok, err := s.prune(ctx, "u1")
		if err != nil || ok {
			t.Fatalf("expected member kept, got pruned %v err %v", ok, err)
		}

		got, err := s.FindCandidate(ctx, searcher(t, clk))
		if err != nil || got == nil || got.TicketId != ticket.TicketId {
			t.Fatalf("expected %v still findable, got %+v err %v", ticket.TicketId, got, err)
		}
	})

	t.Run("undecodable ticket is skipped then swept", func(t *testing.T) {
		clk := clock.NewManual(start)
		s, client := newRedisStoreAndClient(t, clk)
		client.HSet(ctx, ticketRedisKey("bad"),
			"ticketId", "t-bad",
			"userId", "bad",
			"language", "en",
			"genderFilter", "oops",
			"countryFilter", anyCountry,
			"gender", 0,
			"country", "",
			"enqueuedAt", start.UnixMilli(),
		)
		client.ZAdd(ctx, waitingRedisKey, &redis.Z{Score: float64(start.UnixMilli()), Member: "bad"})

		clk.Advance(time.Second)
		good, err := NewTicket("u1", openCriteria, Profile{}, clk.Now())
		if err != nil {
			t.Fatalf("new ticket: %v", err)
		}
		if err := s.Enqueue(ctx, good); err != nil {
			t.Fatalf("enqueue: %v", err)
		}

		got, err := s.FindCandidate(ctx, searcher(t, clk))
		if err != nil || got == nil || got.TicketId != good.TicketId {
			t.Fatalf("expected %v, got %+v err %v", good.TicketId, got, err)
		}
		if exists, _ := client.Exists(ctx, ticketRedisKey("bad")).Result(); exists != 1 {
			t.Fatalf("expected undecodable ticket kept until stale")
		}

		clk.Advance(2 * testStalePeriod)
		removed, err := s.Sweep(ctx)
		if err != nil || removed != 2 {
			t.Fatalf("expected 2 swept, got %d err %v", removed, err)
		}
		if exists, _ := client.Exists(ctx, ticketRedisKey("bad")).Result(); exists != 0 {
			t.Fatalf("expected undecodable ticket removed")
		}
		if n, err := s.Len(ctx); err != nil || n != 0 {
			t.Fatalf("expected empty waiting set, got %d err %v", n, err)
		}
	})
}
