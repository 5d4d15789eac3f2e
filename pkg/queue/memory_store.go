package queue

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"go.uber.org/zap"
)

type MemoryStore struct {
	// A queue of waiting tickets. It's implemented as linkedhashmap
	// since we want to find ticket frequently through userId, but at the
	// same time we want to record the insert order of the ticket so ties
	// on EnqueuedAt are broken in FIFO order. Key value: userId -> ticket.
	tickets *linkedhashmap.Map

	// Every operation holds the lock, which makes Claim a single
	// compare-and-remove over all of its tickets.
	lock sync.Mutex

	clock       clock.Clock
	stalePeriod time.Duration

	logger *zap.SugaredLogger
}

func NewMemoryStore(clk clock.Clock, stalePeriod time.Duration, loggerFactory *infra.LoggerFactory) *MemoryStore {
	return &MemoryStore{
		tickets:     linkedhashmap.New(),
		clock:       clk,
		stalePeriod: stalePeriod,
		logger:      loggerFactory.Create("MemoryStore").Sugar(),
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, ticket *Ticket) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Put on an existing key keeps its old position, remove first so the
	// new ticket goes to the back.
	s.tickets.Remove(ticket.UserId)
	s.tickets.Put(ticket.UserId, ticket.clone())
	return nil
}

func (s *MemoryStore) FindCandidate(ctx context.Context, ticket *Ticket) (*Ticket, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.clock.Now()
	var (
		oldest *Ticket
		stale  []UserId
	)

	it := s.tickets.Iterator()
	for it.Begin(); it.Next(); {
		candidate := it.Value().(*Ticket)
		if candidate.UserId == ticket.UserId {
			continue
		}

		if candidate.IsStale(now, s.stalePeriod) {
			stale = append(stale, candidate.UserId)
			continue
		}

		if !Compatible(ticket, candidate) {
			continue
		}

		// Strictly older only, so equal timestamps keep insert order.
		if oldest == nil || candidate.EnqueuedAt.Before(oldest.EnqueuedAt) {
			oldest = candidate
		}
	}

	for _, userId := range stale {
		s.tickets.Remove(userId)
		s.logger.Infof("removed stale ticket userId[%v]", userId)
	}

	if oldest == nil {
		return nil, nil
	}
	return oldest.clone(), nil
}

func (s *MemoryStore) Remove(ctx context.Context, userId UserId) (*Ticket, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	value, ok := s.tickets.Get(userId)
	if !ok {
		return nil, nil
	}
	s.tickets.Remove(userId)

	removed := value.(*Ticket).clone()
	removed.State = Cancelled
	return removed, nil
}

func (s *MemoryStore) Claim(ctx context.Context, tickets ...*Ticket) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, ticket := range tickets {
		value, ok := s.tickets.Get(ticket.UserId)
		if !ok || value.(*Ticket).TicketId != ticket.TicketId {
			return false, nil
		}
	}

	for _, ticket := range tickets {
		s.tickets.Remove(ticket.UserId)
	}
	return true, nil
}

func (s *MemoryStore) Restore(ctx context.Context, ticket *Ticket) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.tickets.Get(ticket.UserId); ok {
		return false, nil
	}

	restored := ticket.clone()
	restored.State = Waiting
	s.tickets.Put(ticket.UserId, restored)
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, userId UserId) (*Ticket, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	value, ok := s.tickets.Get(userId)
	if !ok {
		return nil, nil
	}
	return value.(*Ticket).clone(), nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.tickets.Size(), nil
}

func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.clock.Now()
	var stale []UserId
	it := s.tickets.Iterator()
	for it.Begin(); it.Next(); {
		ticket := it.Value().(*Ticket)
		if ticket.IsStale(now, s.stalePeriod) {
			stale = append(stale, ticket.UserId)
		}
	}

	for _, userId := range stale {
		s.tickets.Remove(userId)
		s.logger.Debugf("removed stale ticket userId[%v]", userId)
	}
	return len(stale), nil
}
