package match

import (
	"context"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"game-soul-technology/joker/joker-match-queue-server/pkg/presence"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type sessionState uint8

const (
	searching sessionState = iota

	// Ticket of the session is claimed by a match and its room is being
	// created. Goes to matched, or back to searching if that fails.
	claimed

	matched

	// Terminal, kept until the user reads it.
	timedOut
)

// session is a search of a user on this server. It lives from StartSearch
// until the user stops it, reads its timeout or ends the call it led to.
type session struct {
	ticket *queue.Ticket

	state sessionState

	// Unsuccessful match attempts.
	attempts int

	// An attempt of this session is running.
	attempting bool

	seat *Seat

	finishedAt time.Time

	// Cancels the server side poll loop, nil if there is none.
	cancel context.CancelFunc
}

func (s *session) stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *session) outcome() *Outcome {
	outcome := &Outcome{
		Status:   StatusSearching,
		Attempts: s.attempts,
	}
	switch s.state {
	case matched:
		seat := *s.seat
		outcome.Status = StatusMatched
		outcome.Seat = &seat
	case timedOut:
		outcome.Status = StatusTimedOut
	}
	return outcome
}

type call struct {
	roomId RoomId

	// Users who got a seat. Only they are billed.
	participants []queue.UserId

	startedAt time.Time

	// Closed when the call ends.
	done chan struct{}
}

func (c *call) has(userId queue.UserId) bool {
	for _, participant := range c.participants {
		if participant == userId {
			return true
		}
	}
	return false
}

// Coordinator pairs searching users into rooms. All writes to waiting
// tickets and presence go through it.
type Coordinator struct {
	// Notify hub about changes of a user's search or call.
	Notify chan *Notification

	// Notify current stats.
	NotifyStats chan Stats

	store       queue.Store
	presence    presence.Store
	wallet      Wallet
	rooms       RoomFactory
	matchConfig *config.MatchConfig
	config      *config.Config
	clock       clock.Clock
	newTicker   TickerFactory
	stats       *StatsTracker
	tracer      trace.Tracer
	logger      *zap.SugaredLogger

	// Guards sessions, calls and callOf. Store writes that must not
	// interleave with a session change are made while holding it.
	lock sync.Mutex

	// Key value: userId -> session.
	sessions map[queue.UserId]*session

	// Key value: roomId -> call.
	calls map[RoomId]*call

	// Key value: userId -> roomId of the call the user is in.
	callOf map[queue.UserId]RoomId
}

func ProvideCoordinator(
	store queue.Store,
	presenceStore presence.Store,
	wallet Wallet,
	rooms RoomFactory,
	matchConfig *config.MatchConfig,
	config *config.Config,
	clk clock.Clock,
	newTicker TickerFactory,
	stats *StatsTracker,
	loggerFactory *infra.LoggerFactory,
) *Coordinator {
	return &Coordinator{
		Notify:      make(chan *Notification, 1024),
		NotifyStats: make(chan Stats, 1024),

		store:       store,
		presence:    presenceStore,
		wallet:      wallet,
		rooms:       rooms,
		matchConfig: matchConfig,
		config:      config,
		clock:       clk,
		newTicker:   newTicker,
		stats:       stats,
		tracer:      otel.Tracer("match"),
		logger:      loggerFactory.Create("Coordinator").Sugar(),

		sessions: make(map[queue.UserId]*session),
		calls:    make(map[RoomId]*call),
		callOf:   make(map[queue.UserId]RoomId),
	}
}

// StartSearch enqueues a ticket for userId and starts searching. Calling
// it again while searching replaces the search.
func (c *Coordinator) StartSearch(ctx context.Context, userId queue.UserId, criteria queue.Criteria, profile queue.Profile) (*queue.Ticket, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.StartSearch")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", string(userId)))

	ticket, err := c.startSearch(ctx, userId, criteria, profile)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ticket, nil
}

func (c *Coordinator) startSearch(ctx context.Context, userId queue.UserId, criteria queue.Criteria, profile queue.Profile) (*queue.Ticket, error) {
	ticket, err := queue.NewTicket(userId, criteria, profile, c.clock.Now())
	if err != nil {
		return nil, err
	}

	settings := c.matchConfig.Settings()
	if !settings.IsMatchEnabled {
		return nil, ErrMatchDisabled
	}

	c.lock.Lock()
	err = c.checkStartableLocked(userId)
	c.lock.Unlock()
	if err != nil {
		return nil, err
	}

	balance, err := c.wallet.Balance(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("check balance of userId[%v]: %w", userId, err)
	}
	if balance < int64(settings.CoinsPerMinute) {
		return nil, fmt.Errorf("%w: balance[%v] coinsPerMinute[%v]", ErrInsufficientBalance, balance, settings.CoinsPerMinute)
	}

	attrs := presence.Attrs{Online: true, Lang: ticket.Criteria.Language}
	if err := c.presence.Heartbeat(ctx, string(userId), attrs); err != nil {
		return nil, fmt.Errorf("%w: record presence: %v", ErrEnqueueFailed, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.checkStartableLocked(userId); err != nil {
		return nil, err
	}
	if err := c.store.Enqueue(ctx, ticket); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	if old := c.sessions[userId]; old != nil {
		old.stop()
		c.logger.Infof("userId[%v] replaced ticket[%+v]", userId, old.ticket)
	}

	s := &session{ticket: ticket, state: searching}
	c.sessions[userId] = s
	if *c.config.ServerSidePolling {
		loopCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go c.searchLoop(loopCtx, s)
	}

	c.logger.Infof("userId[%v] started search ticket[%+v]", userId, ticket)
	result := *ticket
	return &result, nil
}

func (c *Coordinator) checkStartableLocked(userId queue.UserId) error {
	if _, ok := c.callOf[userId]; ok {
		return ErrAlreadyInCall
	}
	if s := c.sessions[userId]; s != nil {
		switch s.state {
		case claimed:
			return ErrMatchInProgress
		case matched:
			return ErrAlreadyInCall
		}
	}
	return nil
}

// TryMatch makes one match attempt for the search of userId and returns
// its outcome. A finished search returns the same outcome on every call,
// except a timeout which is returned once.
func (c *Coordinator) TryMatch(ctx context.Context, userId queue.UserId) (*Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.TryMatch")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", string(userId)))

	c.lock.Lock()
	s := c.sessions[userId]
	c.lock.Unlock()
	if s == nil {
		return nil, ErrNotSearching
	}

	outcome, err := c.attemptMatch(ctx, s)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("match.status", string(outcome.Status)))
	if outcome.Status == StatusTimedOut {
		c.forget(s)
	}
	return outcome, nil
}

// PollForMatch returns the outcome of the search of userId. When searches
// are polled by the server it only reads the outcome, otherwise every
// call is a match attempt.
func (c *Coordinator) PollForMatch(ctx context.Context, userId queue.UserId) (*Outcome, error) {
	if !*c.config.ServerSidePolling {
		return c.TryMatch(ctx, userId)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	s := c.sessions[userId]
	if s == nil {
		return nil, ErrNotSearching
	}
	if s.state == timedOut {
		delete(c.sessions, userId)
	}
	return s.outcome(), nil
}

// StopSearch removes the ticket of userId. A match already committed for
// the ticket still goes to the other side, userId never gets it.
func (c *Coordinator) StopSearch(ctx context.Context, userId queue.UserId) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if s := c.sessions[userId]; s != nil && s.state != matched {
		delete(c.sessions, userId)
		s.stop()
		s.ticket.State = queue.Cancelled
		c.logger.Infof("userId[%v] stopped search ticket[%+v]", userId, s.ticket)
	}

	if _, err := c.store.Remove(ctx, userId); err != nil {
		return fmt.Errorf("remove ticket of userId[%v]: %w", userId, err)
	}
	return nil
}

func (c *Coordinator) Heartbeat(ctx context.Context, userId queue.UserId, attrs presence.Attrs) error {
	if userId == "" {
		return ErrInvalidUser
	}
	return c.presence.Heartbeat(ctx, string(userId), attrs)
}

func (c *Coordinator) Stats() Stats {
	return c.stats.Snapshot()
}

// forget drops a timed out session once its outcome is read.
func (c *Coordinator) forget(s *session) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.sessions[s.ticket.UserId] == s && s.state == timedOut {
		delete(c.sessions, s.ticket.UserId)
	}
}

// ownerLocked returns the session holding ticket, nil if the user stopped
// or replaced it.
func (c *Coordinator) ownerLocked(ticket *queue.Ticket) *session {
	s := c.sessions[ticket.UserId]
	if s == nil || s.ticket.TicketId != ticket.TicketId {
		return nil
	}
	return s
}

func (c *Coordinator) notify(notification *Notification) {
	select {
	case c.Notify <- notification:
	default:
		c.logger.Warnf("notify channel full, dropped notification[%+v]", notification)
	}
}
