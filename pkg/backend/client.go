package backend

import (
	"context"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"game-soul-technology/joker/joker-match-queue-server/pkg/match"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"
	"net/http"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"
)

// Client calls the main server, which owns wallets and video rooms.
type Client struct {
	httpClient *req.Client
	logger     *zap.SugaredLogger
}

func ProvideClient(httpClient *req.Client, loggerFactory *infra.LoggerFactory) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     loggerFactory.Create("Backend").Sugar(),
	}
}

func (c *Client) Balance(ctx context.Context, userId queue.UserId) (int64, error) {
	result := &struct {
		Data struct {
			Coins int64 `json:"coins"`
		} `json:"data"`
	}{}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("userId", string(userId)).
		SetResult(result).
		Get("/wallet/{userId}/balance")
	if err != nil {
		return 0, fmt.Errorf("get balance of userId[%v]: %w", userId, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("get balance of userId[%v] failed with status[%v]", userId, resp.Status)
	}

	return result.Data.Coins, nil
}

func (c *Client) Debit(ctx context.Context, userId queue.UserId, amount int64, idempotencyKey string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("userId", string(userId)).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(map[string]interface{}{"amount": amount}).
		Post("/wallet/{userId}/debit")
	if err != nil {
		return fmt.Errorf("debit userId[%v] amount[%v]: %w", userId, amount, err)
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		return fmt.Errorf("debit userId[%v] amount[%v]: %w", userId, amount, match.ErrInsufficientFunds)
	}
	if resp.IsError() {
		return fmt.Errorf("debit userId[%v] amount[%v] failed with status[%v]", userId, amount, resp.Status)
	}

	c.logger.Debugf("debited userId[%v] amount[%v] key[%v]", userId, amount, idempotencyKey)
	return nil
}

func (c *Client) CreateRoom(ctx context.Context, userA, userB queue.UserId, maxDurationMinutes uint) (*match.Room, error) {
	result := &struct {
		Data match.Room `json:"data"`
	}{}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"userA":              userA,
			"userB":              userB,
			"maxDurationMinutes": maxDurationMinutes,
		}).
		SetResult(result).
		Post("/rooms")
	if err != nil {
		return nil, fmt.Errorf("create room a[%v] b[%v]: %w", userA, userB, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create room a[%v] b[%v] failed with status[%v]", userA, userB, resp.Status)
	}
	if result.Data.RoomId == "" {
		return nil, fmt.Errorf("create room a[%v] b[%v] returned no roomId", userA, userB)
	}

	c.logger.Infof("created roomId[%v] a[%v] b[%v]", result.Data.RoomId, userA, userB)
	return &result.Data, nil
}

func (c *Client) CloseRoom(ctx context.Context, roomId match.RoomId) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("roomId", string(roomId)).
		Delete("/rooms/{roomId}")
	if err != nil {
		return fmt.Errorf("close roomId[%v]: %w", roomId, err)
	}

	// Already closed by the main server.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("close roomId[%v] failed with status[%v]", roomId, resp.Status)
	}
	return nil
}
