package presence

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"sync"

	"github.com/emirpasic/gods/maps/hashmap"
)

type MemoryStore struct {
	// Key value: userId -> *Record.
	records *hashmap.Map
	lock    sync.Mutex

	clock clock.Clock
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		records: hashmap.New(),
		clock:   clk,
	}
}

func (s *MemoryStore) record(userId string) *Record {
	if value, ok := s.records.Get(userId); ok {
		return value.(*Record)
	}
	r := &Record{UserId: userId}
	s.records.Put(userId, r)
	return r
}

func (s *MemoryStore) Heartbeat(ctx context.Context, userId string, attrs Attrs) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	r := s.record(userId)
	r.Online = attrs.Online
	r.LastHeartbeatAt = s.clock.Now()
	if attrs.Lang != "" {
		r.Lang = attrs.Lang
	}
	if attrs.Tags != nil {
		r.Tags = append([]string(nil), attrs.Tags...)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userId string) (*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	value, ok := s.records.Get(userId)
	if !ok {
		return nil, nil
	}
	r := *value.(*Record)
	r.Tags = append([]string(nil), r.Tags...)
	return &r, nil
}

func (s *MemoryStore) SetInCall(ctx context.Context, inCall bool, userIds ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, userId := range userIds {
		s.record(userId).InCall = inCall
	}
	return nil
}
