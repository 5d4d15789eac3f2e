package presence

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestIsReachable(t *testing.T) {
	ttl := 30 * time.Second
	now := testStart

	tests := []struct {
		name   string
		record *Record
		want   bool
	}{
		{"nil", nil, false},
		{"online fresh", &Record{Online: true, LastHeartbeatAt: now.Add(-10 * time.Second)}, true},
		{"exactly at ttl", &Record{Online: true, LastHeartbeatAt: now.Add(-ttl)}, true},
		{"expired", &Record{Online: true, LastHeartbeatAt: now.Add(-ttl - time.Millisecond)}, false},
		{"offline", &Record{Online: false, LastHeartbeatAt: now}, false},
		{"in call", &Record{Online: true, InCall: true, LastHeartbeatAt: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsReachable(now, ttl); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T, clk clock.Clock) Store {
		return NewMemoryStore(clk)
	})
}

func TestRedisStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T, clk clock.Clock) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedisStore(client, clk)
	})
}

func testStoreContract(t *testing.T, newStore func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()

	t.Run("get unknown user", func(t *testing.T) {
		store := newStore(t, clock.NewManual(testStart))
		r, err := store.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if r != nil {
			t.Fatalf("expected nil record, got %+v", r)
		}
	})

	t.Run("heartbeat upserts", func(t *testing.T) {
		clk := clock.NewManual(testStart)
		store := newStore(t, clk)

		if err := store.Heartbeat(ctx, "u1", Attrs{Online: true, Lang: "en", Tags: []string{"a", "b"}}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		clk.Advance(5 * time.Second)
		if err := store.Heartbeat(ctx, "u1", Attrs{Online: true}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}

		r, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if r == nil || r.UserId != "u1" || !r.Online {
			t.Fatalf("expected online record of u1, got %+v", r)
		}
		if !r.LastHeartbeatAt.Equal(testStart.Add(5 * time.Second)) {
			t.Fatalf("expected last heartbeat %v, got %v", testStart.Add(5*time.Second), r.LastHeartbeatAt)
		}
		if r.Lang != "en" || len(r.Tags) != 2 || r.Tags[0] != "a" || r.Tags[1] != "b" {
			t.Fatalf("expected attrs kept from first heartbeat, got lang[%v] tags%v", r.Lang, r.Tags)
		}
	})

	t.Run("in call survives heartbeat", func(t *testing.T) {
		clk := clock.NewManual(testStart)
		store := newStore(t, clk)

		if err := store.Heartbeat(ctx, "u1", Attrs{Online: true}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		if err := store.SetInCall(ctx, true, "u1", "u2"); err != nil {
			t.Fatalf("set in call: %v", err)
		}
		if err := store.Heartbeat(ctx, "u1", Attrs{Online: true}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}

		for _, userId := range []string{"u1", "u2"} {
			r, err := store.Get(ctx, userId)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if r == nil || !r.InCall {
				t.Fatalf("expected %v in call, got %+v", userId, r)
			}
			if r.IsReachable(clk.Now(), 30*time.Second) {
				t.Fatalf("expected %v unreachable while in call", userId)
			}
		}

		if err := store.SetInCall(ctx, false, "u1", "u2"); err != nil {
			t.Fatalf("set in call: %v", err)
		}
		r, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !r.IsReachable(clk.Now(), 30*time.Second) {
			t.Fatalf("expected u1 reachable after call, got %+v", r)
		}
	})

	t.Run("offline heartbeat", func(t *testing.T) {
		store := newStore(t, clock.NewManual(testStart))
		if err := store.Heartbeat(ctx, "u1", Attrs{Online: true}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		if err := store.Heartbeat(ctx, "u1", Attrs{Online: false}); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		r, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if r.Online {
			t.Fatalf("expected offline, got %+v", r)
		}
	})
}
