package match

import (
	"context"
	"errors"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"sync"
	"testing"
	"time"
)

type fakeWallet struct {
	lock     sync.Mutex
	balances map[queue.UserId]int64

	// Balance of users absent from balances.
	defaultBalance int64

	debits []string
}

func newFakeWallet(defaultBalance int64) *fakeWallet {
	return &fakeWallet{
		balances:       make(map[queue.UserId]int64),
		defaultBalance: defaultBalance,
	}
}

func (w *fakeWallet) balanceLocked(userId queue.UserId) int64 {
	if balance, ok := w.balances[userId]; ok {
		return balance
	}
	return w.defaultBalance
}

func (w *fakeWallet) set(userId queue.UserId, balance int64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.balances[userId] = balance
}

func (w *fakeWallet) Balance(ctx context.Context, userId queue.UserId) (int64, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.balanceLocked(userId), nil
}

func (w *fakeWallet) Debit(ctx context.Context, userId queue.UserId, amount int64, idempotencyKey string) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	balance := w.balanceLocked(userId)
	if balance < amount {
		return ErrInsufficientFunds
	}
	w.balances[userId] = balance - amount
	w.debits = append(w.debits, idempotencyKey)
	return nil
}

func (w *fakeWallet) debitKeys() []string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]string(nil), w.debits...)
}

type createdRoom struct {
	room       Room
	userA      queue.UserId
	userB      queue.UserId
	maxMinutes uint
}

type fakeRooms struct {
	lock    sync.Mutex
	created []createdRoom
	closed  []RoomId

	// Number of CreateRoom calls left to fail.
	failures int

	// If set, CreateRoom signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeRooms) CreateRoom(ctx context.Context, userA, userB queue.UserId, maxDurationMinutes uint) (*Room, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.failures > 0 {
		f.failures--
		return nil, errors.New("room provider unavailable")
	}

	n := len(f.created) + 1
	room := Room{
		RoomId: RoomId(fmt.Sprintf("room-%v", n)),
		TokenA: fmt.Sprintf("token-%v-a", n),
		TokenB: fmt.Sprintf("token-%v-b", n),
	}
	f.created = append(f.created, createdRoom{room: room, userA: userA, userB: userB, maxMinutes: maxDurationMinutes})
	return &room, nil
}

func (f *fakeRooms) CloseRoom(ctx context.Context, roomId RoomId) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = append(f.closed, roomId)
	return nil
}

func (f *fakeRooms) createdRooms() []createdRoom {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]createdRoom(nil), f.created...)
}

func (f *fakeRooms) closedRooms() []RoomId {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]RoomId(nil), f.closed...)
}

type manualTicker struct {
	d  time.Duration
	ch chan time.Time

	lock    sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stopped = true
}

func (t *manualTicker) isStopped() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stopped
}

// fakeTickers hands out manual tickers and remembers them.
type fakeTickers struct {
	lock    sync.Mutex
	tickers []*manualTicker
}

func (f *fakeTickers) factory() TickerFactory {
	return func(d time.Duration) Ticker {
		f.lock.Lock()
		defer f.lock.Unlock()

		ticker := &manualTicker{d: d, ch: make(chan time.Time)}
		f.tickers = append(f.tickers, ticker)
		return ticker
	}
}

func (f *fakeTickers) await(t *testing.T, d time.Duration) *manualTicker {
	t.Helper()

	var found *manualTicker
	waitFor(t, fmt.Sprintf("ticker of %v", d), func() bool {
		f.lock.Lock()
		defer f.lock.Unlock()
		for _, ticker := range f.tickers {
			if ticker.d == d {
				found = ticker
				return true
			}
		}
		return false
	})
	return found
}

// failingStore fails every Enqueue.
type failingStore struct {
	queue.Store
}

func (s failingStore) Enqueue(ctx context.Context, ticket *queue.Ticket) error {
	return errors.New("store unavailable")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
