package match

import (
	"context"
	"errors"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"

	"go.opentelemetry.io/otel/attribute"
)

const (
	reasonEndedByPeer       = "ended by peer"
	reasonInsufficientFunds = "insufficient funds"
	reasonDebitFailed       = "debit failed"
)

// EndCall tears down the call in roomId on behalf of userId. Ending a call
// that already ended is not an error.
func (c *Coordinator) EndCall(ctx context.Context, userId queue.UserId, roomId RoomId) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.EndCall")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", string(userId)),
		attribute.String("room.id", string(roomId)),
	)

	c.lock.Lock()
	cl := c.calls[roomId]
	c.lock.Unlock()

	if cl == nil {
		return nil
	}
	if !cl.has(userId) {
		return ErrNotParticipant
	}

	if err := c.endCall(ctx, cl, userId, reasonEndedByPeer, false); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *Coordinator) endCall(ctx context.Context, cl *call, initiator queue.UserId, reason string, notifyInitiator bool) error {
	c.lock.Lock()
	if c.calls[cl.roomId] != cl {
		c.lock.Unlock()
		return nil
	}

	delete(c.calls, cl.roomId)
	userIds := make([]string, 0, len(cl.participants))
	for _, userId := range cl.participants {
		delete(c.callOf, userId)
		if s := c.sessions[userId]; s != nil && s.seat != nil && s.seat.RoomId == cl.roomId {
			delete(c.sessions, userId)
		}
		userIds = append(userIds, string(userId))
	}
	close(cl.done)

	if err := c.presence.SetInCall(ctx, false, userIds...); err != nil {
		c.logger.Errorf("roomId[%v] cannot mark users%v out of call %v", cl.roomId, userIds, err)
	}
	c.lock.Unlock()

	c.logger.Infof("roomId[%v] ended by userId[%v] reason[%v] duration[%v]", cl.roomId, initiator, reason, c.clock.Now().Sub(cl.startedAt))
	for _, userId := range cl.participants {
		if userId == initiator && !notifyInitiator {
			continue
		}
		c.notify(&Notification{
			UserId: userId,
			Kind:   NotifyCallEnded,
			RoomId: cl.roomId,
			Reason: reason,
		})
	}

	if err := c.rooms.CloseRoom(ctx, cl.roomId); err != nil {
		return fmt.Errorf("close roomId[%v]: %w", cl.roomId, err)
	}
	return nil
}

// billCall debits every participant at the end of each billing interval.
// The first failed debit ends the call.
func (c *Coordinator) billCall(cl *call) {
	ticker := c.newTicker(c.config.BillingInterval())
	defer ticker.Stop()

	ctx := context.Background()
	for minute := 1; ; minute++ {
		select {
		case <-cl.done:
			return
		case <-ticker.C():
		}

		// Tick and end may race, an ended call is never billed.
		select {
		case <-cl.done:
			return
		default:
		}

		rate := int64(c.matchConfig.Settings().CoinsPerMinute)
		if rate <= 0 {
			continue
		}

		for _, userId := range cl.participants {
			idempotencyKey := fmt.Sprintf("%v:%v:%v", cl.roomId, userId, minute)
			err := c.wallet.Debit(ctx, userId, rate, idempotencyKey)
			if err == nil {
				continue
			}

			reason := reasonDebitFailed
			if errors.Is(err, ErrInsufficientFunds) {
				reason = reasonInsufficientFunds
			}
			c.logger.Warnf("roomId[%v] userId[%v] debit failed at minute[%v], ending call %v", cl.roomId, userId, minute, err)
			if err := c.endCall(ctx, cl, userId, reason, true); err != nil {
				c.logger.Errorf("roomId[%v] cannot end call %v", cl.roomId, err)
			}
			return
		}
		c.logger.Debugf("roomId[%v] billed minute[%v] rate[%v]", cl.roomId, minute, rate)
	}
}
