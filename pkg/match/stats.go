package match

import (
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"go.uber.org/zap"
)

// Stats is a snapshot pushed to clients.
type Stats struct {
	WaitingTickets int `json:"waitingTickets"`

	SearchingUsers int `json:"searchingUsers"`

	ActiveCalls int `json:"activeCalls"`

	// Since process start.
	MatchesMade int64 `json:"matchesMade"`

	// Avg time from enqueue to match. Calculated by a fixed size sliding
	// window.
	AvgWaitDuration time.Duration `json:"avgWaitDuration"`
}

type StatsTracker struct {
	stats Stats

	// A fixed size sliding window for calculating average wait time.
	waitDurationQueue *linkedlistqueue.Queue

	lock sync.Mutex

	config *config.Config

	logger *zap.SugaredLogger
}

func ProvideStatsTracker(config *config.Config, loggerFactory *infra.LoggerFactory) *StatsTracker {
	return &StatsTracker{
		waitDurationQueue: linkedlistqueue.New(),
		config:            config,
		logger:            loggerFactory.Create("Stats").Sugar(),
	}
}

func (s *StatsTracker) Snapshot() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stats
}

func (s *StatsTracker) setGauges(waitingTickets, searchingUsers, activeCalls int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stats.WaitingTickets = waitingTickets
	s.stats.SearchingUsers = searchingUsers
	s.stats.ActiveCalls = activeCalls
}

func (s *StatsTracker) recordMatch(waitDurations ...time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stats.MatchesMade++
	for _, value := range waitDurations {
		if s.waitDurationQueue.Size() >= *s.config.AverageWaitWindowSize {
			s.waitDurationQueue.Dequeue()
		}
		s.waitDurationQueue.Enqueue(value)
	}

	if s.waitDurationQueue.Size() <= 0 {
		return
	}

	it := s.waitDurationQueue.Iterator()
	var totalWaitDuration time.Duration
	for it.Next() {
		totalWaitDuration += it.Value().(time.Duration)
	}

	s.stats.AvgWaitDuration = totalWaitDuration / time.Duration(s.waitDurationQueue.Size())
	s.logger.Debugf("updated avgWaitDuration[%v]", s.stats.AvgWaitDuration)
}
