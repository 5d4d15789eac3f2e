package match

import (
	"context"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	reasonSearchExhausted = "search exhausted"
	reasonUnreachable     = "unreachable"
	reasonRestoreFailed   = "restore failed"
	reasonRoomFailed      = "failed to connect, retrying"
)

func (c *Coordinator) searchLoop(ctx context.Context, s *session) {
	ticker := c.newTicker(c.config.PollInterval())
	defer ticker.Stop()

	for {
		outcome, err := c.attemptMatch(ctx, s)
		if err != nil || outcome.Status != StatusSearching {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

// attemptMatch runs one attempt for s unless s is finished, claimed or
// already attempting. Store and backend failures count as an unsuccessful
// attempt.
func (c *Coordinator) attemptMatch(ctx context.Context, s *session) (*Outcome, error) {
	userId := s.ticket.UserId

	c.lock.Lock()
	if c.sessions[userId] != s {
		c.lock.Unlock()
		return nil, ErrNotSearching
	}
	if s.state != searching || s.attempting {
		outcome := s.outcome()
		c.lock.Unlock()
		return outcome, nil
	}
	if c.isExhaustedLocked(s) {
		c.tryTimeoutLocked(ctx, s)
		outcome := s.outcome()
		c.lock.Unlock()
		return outcome, nil
	}
	s.attempting = true
	c.lock.Unlock()

	c.findAndCommit(ctx, s.ticket)

	c.lock.Lock()
	defer c.lock.Unlock()

	s.attempting = false
	if c.sessions[userId] != s {
		return nil, ErrNotSearching
	}
	if s.state == searching {
		s.attempts++
		c.logger.Debugf("userId[%v] no match at attempt[%v]", userId, s.attempts)
		if c.isExhaustedLocked(s) {
			c.tryTimeoutLocked(ctx, s)
		}
	}
	return s.outcome(), nil
}

// isExhaustedLocked is true once the attempts or the wall clock budget of
// the search are used up.
func (c *Coordinator) isExhaustedLocked(s *session) bool {
	if s.attempts >= *c.config.MaxPollAttempts {
		return true
	}
	deadline := s.ticket.EnqueuedAt.Add(c.config.SearchTimeout())
	return !c.clock.Now().Before(deadline)
}

// tryTimeoutLocked removes the ticket of s and times s out. If the ticket
// is gone, a match is probably committing it and s is left alone, unless
// the budget is overrun twice.
func (c *Coordinator) tryTimeoutLocked(ctx context.Context, s *session) {
	removed, err := c.store.Claim(ctx, s.ticket)
	if err != nil {
		c.logger.Errorf("userId[%v] cannot remove ticket on timeout %v", s.ticket.UserId, err)
	}

	overrun := s.ticket.EnqueuedAt.Add(2 * c.config.SearchTimeout())
	if !removed && c.clock.Now().Before(overrun) {
		c.logger.Debugf("userId[%v] ticket[%v] not waiting, delay timeout", s.ticket.UserId, s.ticket.TicketId)
		return
	}
	c.finishLocked(s, reasonSearchExhausted)
}

func (c *Coordinator) finishLocked(s *session, reason string) {
	s.state = timedOut
	s.ticket.State = queue.Cancelled
	s.finishedAt = c.clock.Now()
	s.stop()

	c.logger.Infof("userId[%v] search timed out after attempts[%v] reason[%v]", s.ticket.UserId, s.attempts, reason)
	c.notify(&Notification{
		UserId: s.ticket.UserId,
		Kind:   NotifyTimedOut,
		Reason: reason,
	})
}

func (c *Coordinator) findAndCommit(ctx context.Context, ticket *queue.Ticket) {
	span := trace.SpanFromContext(ctx)

	for i := 0; i < *c.config.MaxCandidateChecks; i++ {
		candidate, err := c.store.FindCandidate(ctx, ticket)
		if err != nil {
			span.RecordError(err)
			c.logger.Errorf("userId[%v] find candidate failed %v", ticket.UserId, err)
			return
		}
		if candidate == nil {
			return
		}

		record, err := c.presence.Get(ctx, string(candidate.UserId))
		if err != nil {
			span.RecordError(err)
			c.logger.Errorf("userId[%v] get presence of candidate[%v] failed %v", ticket.UserId, candidate.UserId, err)
			return
		}
		if !record.IsReachable(c.clock.Now(), c.config.PresenceTtl()) {
			c.dropUnreachable(ctx, candidate)
			continue
		}

		// Both tickets leave the queue in one step, or neither does.
		ok, err := c.store.Claim(ctx, ticket, candidate)
		if err != nil {
			span.RecordError(err)
			c.logger.Errorf("userId[%v] claim failed %v", ticket.UserId, err)
			return
		}
		if !ok {
			current, err := c.store.Get(ctx, ticket.UserId)
			if err != nil || current == nil || current.TicketId != ticket.TicketId {
				return
			}
			c.logger.Debugf("userId[%v] candidate[%v] taken by another match", ticket.UserId, candidate.UserId)
			continue
		}

		c.commit(context.WithoutCancel(ctx), ticket, candidate)
		return
	}
}

// dropUnreachable removes the ticket of a user we can't hand a room to.
func (c *Coordinator) dropUnreachable(ctx context.Context, candidate *queue.Ticket) {
	c.lock.Lock()
	defer c.lock.Unlock()

	ok, err := c.store.Claim(ctx, candidate)
	if err != nil {
		c.logger.Errorf("cannot remove unreachable ticket[%+v] %v", candidate, err)
		return
	}
	if !ok {
		return
	}

	c.logger.Infof("removed unreachable ticket[%+v]", candidate)
	if s := c.ownerLocked(candidate); s != nil && s.state == searching {
		c.finishLocked(s, reasonUnreachable)
	}
}

// commit turns two claimed tickets into a room. Sides that stopped or
// replaced their search meanwhile don't get a seat, the match stands for
// the other side.
func (c *Coordinator) commit(ctx context.Context, a, b *queue.Ticket) {
	c.lock.Lock()
	var present []*queue.Ticket
	for _, ticket := range []*queue.Ticket{a, b} {
		ticket.State = queue.Matched
		if s := c.ownerLocked(ticket); s != nil && s.state == searching {
			s.state = claimed
			s.ticket.State = queue.Matched
			present = append(present, ticket)
		}
	}
	c.lock.Unlock()

	if len(present) == 0 {
		c.logger.Infof("both sides left, drop match a[%v] b[%v]", a.UserId, b.UserId)
		return
	}

	settings := c.matchConfig.Settings()
	maxMinutes, err := c.callMinutes(ctx, settings, present)
	var room *Room
	if err == nil {
		room, err = c.rooms.CreateRoom(ctx, a.UserId, b.UserId, maxMinutes)
	}
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		c.logger.Warnf("a[%v] b[%v] cannot create room, rolling back %v", a.UserId, b.UserId, err)
		c.rollback(ctx, present)
		return
	}

	c.deliver(ctx, room, a, b, maxMinutes)
}

// callMinutes is the longest call every side can pay for, bounded by
// settings.
func (c *Coordinator) callMinutes(ctx context.Context, settings config.MatchSettings, tickets []*queue.Ticket) (uint, error) {
	minutes := settings.MaxCallMinutes
	if settings.CoinsPerMinute > 0 {
		for _, ticket := range tickets {
			balance, err := c.wallet.Balance(ctx, ticket.UserId)
			if err != nil {
				return 0, err
			}
			affordable := uint(0)
			if balance > 0 {
				affordable = uint(balance) / settings.CoinsPerMinute
			}
			if affordable < minutes {
				minutes = affordable
			}
		}
	}

	// The wallet guard ends the call at the first minute nobody can pay.
	if minutes < 1 {
		minutes = 1
	}
	return minutes, nil
}

// rollback puts the claimed tickets back at their old position.
func (c *Coordinator) rollback(ctx context.Context, tickets []*queue.Ticket) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, ticket := range tickets {
		s := c.ownerLocked(ticket)
		if s == nil || s.state != claimed {
			continue
		}

		s.state = searching
		s.ticket.State = queue.Waiting
		if ok, err := c.store.Restore(ctx, ticket); err != nil || !ok {
			c.logger.Errorf("userId[%v] cannot restore ticket ok[%v] err[%v]", ticket.UserId, ok, err)
			c.finishLocked(s, reasonRestoreFailed)
			continue
		}

		c.notify(&Notification{
			UserId: ticket.UserId,
			Kind:   NotifyRetrying,
			Reason: reasonRoomFailed,
		})
	}
}

// deliver hands seats of room to the sides still waiting for it and starts
// billing.
func (c *Coordinator) deliver(ctx context.Context, room *Room, a, b *queue.Ticket, maxMinutes uint) {
	now := c.clock.Now()
	seats := map[queue.UserId]*Seat{
		a.UserId: {RoomId: room.RoomId, Token: room.TokenA, PeerUserId: b.UserId, MaxMinutes: maxMinutes},
		b.UserId: {RoomId: room.RoomId, Token: room.TokenB, PeerUserId: a.UserId, MaxMinutes: maxMinutes},
	}
	cl := &call{
		roomId:    room.RoomId,
		startedAt: now,
		done:      make(chan struct{}),
	}
	var waitDurations []time.Duration

	c.lock.Lock()
	for _, ticket := range []*queue.Ticket{a, b} {
		s := c.ownerLocked(ticket)
		if s == nil || s.state != claimed {
			continue
		}

		s.state = matched
		s.seat = seats[ticket.UserId]
		s.stop()
		cl.participants = append(cl.participants, ticket.UserId)
		c.callOf[ticket.UserId] = room.RoomId
		waitDurations = append(waitDurations, now.Sub(ticket.EnqueuedAt))
	}

	if len(cl.participants) == 0 {
		c.lock.Unlock()
		c.logger.Infof("roomId[%v] both sides left while creating room, closing it", room.RoomId)
		if err := c.rooms.CloseRoom(ctx, room.RoomId); err != nil {
			c.logger.Errorf("roomId[%v] cannot close room %v", room.RoomId, err)
		}
		return
	}

	c.calls[room.RoomId] = cl
	userIds := make([]string, 0, len(cl.participants))
	for _, userId := range cl.participants {
		userIds = append(userIds, string(userId))
	}
	if err := c.presence.SetInCall(ctx, true, userIds...); err != nil {
		c.logger.Errorf("roomId[%v] cannot mark users%v in call %v", room.RoomId, userIds, err)
	}
	c.lock.Unlock()

	c.logger.Infof("matched roomId[%v] a[%v] b[%v] participants%v maxMinutes[%v]", room.RoomId, a.UserId, b.UserId, cl.participants, maxMinutes)
	for _, userId := range cl.participants {
		c.notify(&Notification{
			UserId: userId,
			Kind:   NotifyMatched,
			Seat:   seats[userId],
			RoomId: room.RoomId,
		})
	}
	c.stats.recordMatch(waitDurations...)

	go c.billCall(cl)
}
