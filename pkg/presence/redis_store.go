package presence

import (
	"context"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Hash of one presence record, suffixed with the user id.
const presenceRedisKeyPrefix = "presence:"

type presenceRecord struct {
	Online          bool   `redis:"online"`
	InCall          bool   `redis:"inCall"`
	LastHeartbeatAt int64  `redis:"lastHeartbeatAt"`
	Lang            string `redis:"lang"`
	Tags            string `redis:"tags"`
}

type RedisStore struct {
	redisClient *redis.Client
	clock       clock.Clock
}

func NewRedisStore(redisClient *redis.Client, clk clock.Clock) *RedisStore {
	return &RedisStore{
		redisClient: redisClient,
		clock:       clk,
	}
}

func presenceRedisKey(userId string) string {
	return presenceRedisKeyPrefix + userId
}

func (s *RedisStore) Heartbeat(ctx context.Context, userId string, attrs Attrs) error {
	values := []interface{}{
		"online", attrs.Online,
		"lastHeartbeatAt", s.clock.Now().UnixMilli(),
	}
	if attrs.Lang != "" {
		values = append(values, "lang", attrs.Lang)
	}
	if attrs.Tags != nil {
		values = append(values, "tags", strings.Join(attrs.Tags, ","))
	}

	if err := s.redisClient.HSet(ctx, presenceRedisKey(userId), values...).Err(); err != nil {
		return fmt.Errorf("heartbeat userId[%v]: %w", userId, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userId string) (*Record, error) {
	cmd := s.redisClient.HGetAll(ctx, presenceRedisKey(userId))
	values, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("get presence userId[%v]: %w", userId, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	pr := &presenceRecord{}
	if err := cmd.Scan(pr); err != nil {
		return nil, fmt.Errorf("scan presence userId[%v]: %w", userId, err)
	}

	r := &Record{
		UserId:          userId,
		Online:          pr.Online,
		InCall:          pr.InCall,
		LastHeartbeatAt: time.UnixMilli(pr.LastHeartbeatAt),
		Lang:            pr.Lang,
	}
	if pr.Tags != "" {
		r.Tags = strings.Split(pr.Tags, ",")
	}
	return r, nil
}

func (s *RedisStore) SetInCall(ctx context.Context, inCall bool, userIds ...string) error {
	_, err := s.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, userId := range userIds {
			pipe.HSet(ctx, presenceRedisKey(userId), "inCall", inCall)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set inCall[%v] userIds%v: %w", inCall, userIds, err)
	}
	return nil
}
