package queue

import (
	"context"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// Sorted set of waiting user ids scored by EnqueuedAt in msec. Equal
	// scores are ordered by user id, not by insert order.
	waitingRedisKey = "queue:waiting"

	// Hash of one waiting ticket, suffixed with the user id.
	ticketRedisKeyPrefix = "queue:ticket:"

	// Number of waiting tickets read per round trip while scanning.
	scanPageSize = 128
)

// KEYS[1] waiting set, KEYS[2..n+1] ticket hashes.
// ARGV[1..n] expected ticket ids, ARGV[n+1..2n] user ids.
var claimScript = redis.NewScript(`
local n = #KEYS - 1
for i = 1, n do
	if redis.call('HGET', KEYS[i + 1], 'ticketId') ~= ARGV[i] then
		return 0
	end
end
for i = 1, n do
	redis.call('DEL', KEYS[i + 1])
	redis.call('ZREM', KEYS[1], ARGV[n + i])
end
return 1
`)

// KEYS[1] waiting set, KEYS[2] ticket hash.
// ARGV[1] score, ARGV[2] user id, ARGV[3..] hash field value pairs.
var restoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// KEYS[1] waiting set, KEYS[2] ticket hash. ARGV[1] user id.
// Drops the member only while its hash is missing.
var pruneScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
return redis.call('ZREM', KEYS[1], ARGV[1])
`)

// ticketRecord is the redis hash layout of a ticket.
type ticketRecord struct {
	TicketId      string `redis:"ticketId"`
	UserId        string `redis:"userId"`
	Language      string `redis:"language"`
	GenderFilter  int    `redis:"genderFilter"`
	CountryFilter string `redis:"countryFilter"`
	Gender        int    `redis:"gender"`
	Country       string `redis:"country"`
	EnqueuedAt    int64  `redis:"enqueuedAt"`
}

func newTicketRecord(t *Ticket) *ticketRecord {
	return &ticketRecord{
		TicketId:      string(t.TicketId),
		UserId:        string(t.UserId),
		Language:      t.Criteria.Language,
		GenderFilter:  int(t.Criteria.Gender),
		CountryFilter: t.Criteria.Country.String(),
		Gender:        int(t.Profile.Gender),
		Country:       t.Profile.Country,
		EnqueuedAt:    t.EnqueuedAt.UnixMilli(),
	}
}

func (r *ticketRecord) fields() []interface{} {
	return []interface{}{
		"ticketId", r.TicketId,
		"userId", r.UserId,
		"language", r.Language,
		"genderFilter", r.GenderFilter,
		"countryFilter", r.CountryFilter,
		"gender", r.Gender,
		"country", r.Country,
		"enqueuedAt", r.EnqueuedAt,
	}
}

func (r *ticketRecord) ticket() *Ticket {
	country := AnyCountry()
	if r.CountryFilter != anyCountry {
		country = OnlyCountry(r.CountryFilter)
	}

	return &Ticket{
		TicketId: TicketId(r.TicketId),
		UserId:   UserId(r.UserId),
		Criteria: Criteria{
			Language: r.Language,
			Gender:   GenderFilter(r.GenderFilter),
			Country:  country,
		},
		Profile: Profile{
			Gender:  Gender(r.Gender),
			Country: r.Country,
		},
		EnqueuedAt: time.UnixMilli(r.EnqueuedAt),
		State:      Waiting,
	}
}

type RedisStore struct {
	redisClient *redis.Client

	clock       clock.Clock
	stalePeriod time.Duration

	logger *zap.SugaredLogger
}

func NewRedisStore(redisClient *redis.Client, clk clock.Clock, stalePeriod time.Duration, loggerFactory *infra.LoggerFactory) *RedisStore {
	return &RedisStore{
		redisClient: redisClient,
		clock:       clk,
		stalePeriod: stalePeriod,
		logger:      loggerFactory.Create("RedisStore").Sugar(),
	}
}

func ticketRedisKey(userId UserId) string {
	return ticketRedisKeyPrefix + string(userId)
}

func (s *RedisStore) Enqueue(ctx context.Context, ticket *Ticket) error {
	key := ticketRedisKey(ticket.UserId)
	record := newTicketRecord(ticket)

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, record.fields()...)
		pipe.ZAdd(ctx, waitingRedisKey, &redis.Z{
			Score:  float64(record.EnqueuedAt),
			Member: record.UserId,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue userId[%v]: %w", ticket.UserId, err)
	}
	return nil
}

func (s *RedisStore) FindCandidate(ctx context.Context, ticket *Ticket) (*Ticket, error) {
	now := s.clock.Now()

	for start := int64(0); ; start += scanPageSize {
		userIds, err := s.redisClient.ZRange(ctx, waitingRedisKey, start, start+scanPageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("scan waiting tickets: %w", err)
		}
		if len(userIds) == 0 {
			return nil, nil
		}

		entries, err := s.getMany(ctx, userIds)
		if err != nil {
			return nil, err
		}

		removed := 0
		for _, entry := range entries {
			if entry.missing {
				// Member without its hash, left by a crash between two
				// writes of a non-transactional client.
				if ok, err := s.prune(ctx, entry.userId); err == nil && ok {
					removed++
				}
				continue
			}
			if entry.ticket == nil {
				// Undecodable, left to Sweep once stale.
				continue
			}

			candidate := entry.ticket

			if candidate.UserId == ticket.UserId {
				continue
			}

			if candidate.IsStale(now, s.stalePeriod) {
				if ok, err := s.Claim(ctx, candidate); err == nil && ok {
					s.logger.Infof("removed stale ticket[%+v]", candidate)
					removed++
				}
				continue
			}

			if Compatible(ticket, candidate) {
				return candidate, nil
			}
		}

		if len(userIds) < scanPageSize {
			return nil, nil
		}
		// Removed members shifted the next page to the left.
		start -= int64(removed)
	}
}

// waitingEntry is a member of the waiting set with its hash read back.
type waitingEntry struct {
	userId UserId

	// Nil when the hash is missing or cannot be decoded.
	ticket *Ticket

	// Hash is gone.
	missing bool

	// Raw ticket id of a hash that cannot be decoded.
	ticketId TicketId
}

func (s *RedisStore) getMany(ctx context.Context, userIds []string) ([]waitingEntry, error) {
	cmds := make([]*redis.StringStringMapCmd, len(userIds))
	_, err := s.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, userId := range userIds {
			cmds[i] = pipe.HGetAll(ctx, ticketRedisKey(UserId(userId)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read waiting tickets: %w", err)
	}

	entries := make([]waitingEntry, len(userIds))
	for i, cmd := range cmds {
		entries[i].userId = UserId(userIds[i])
		if len(cmd.Val()) == 0 {
			entries[i].missing = true
			continue
		}

		ticket, err := decodeTicket(cmd)
		if err != nil {
			s.logger.Errorf("cannot decode ticket userId[%v] %v", userIds[i], err)
			entries[i].ticketId = TicketId(cmd.Val()["ticketId"])
			continue
		}
		entries[i].ticket = ticket
	}
	return entries, nil
}

// prune drops the waiting member of userId if its hash is missing. A
// user who enqueued again meanwhile has a hash and keeps the member.
func (s *RedisStore) prune(ctx context.Context, userId UserId) (bool, error) {
	pruned, err := pruneScript.Run(ctx, s.redisClient,
		[]string{waitingRedisKey, ticketRedisKey(userId)}, string(userId)).Int()
	if err != nil {
		return false, fmt.Errorf("prune userId[%v]: %w", userId, err)
	}
	if pruned == 1 {
		s.logger.Infof("pruned waiting member without ticket userId[%v]", userId)
	}
	return pruned == 1, nil
}

func decodeTicket(cmd *redis.StringStringMapCmd) (*Ticket, error) {
	values, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	record := &ticketRecord{}
	if err := cmd.Scan(record); err != nil {
		return nil, err
	}
	return record.ticket(), nil
}

func (s *RedisStore) Remove(ctx context.Context, userId UserId) (*Ticket, error) {
	key := ticketRedisKey(userId)

	var get *redis.StringStringMapCmd
	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, waitingRedisKey, string(userId))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove userId[%v]: %w", userId, err)
	}

	ticket, err := decodeTicket(get)
	if err != nil || ticket == nil {
		return nil, err
	}
	ticket.State = Cancelled
	return ticket, nil
}

func (s *RedisStore) Claim(ctx context.Context, tickets ...*Ticket) (bool, error) {
	if len(tickets) == 0 {
		return true, nil
	}

	keys := make([]string, 0, len(tickets)+1)
	args := make([]interface{}, 0, 2*len(tickets))
	keys = append(keys, waitingRedisKey)
	for _, ticket := range tickets {
		keys = append(keys, ticketRedisKey(ticket.UserId))
		args = append(args, string(ticket.TicketId))
	}
	for _, ticket := range tickets {
		args = append(args, string(ticket.UserId))
	}

	claimed, err := claimScript.Run(ctx, s.redisClient, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("claim tickets: %w", err)
	}
	return claimed == 1, nil
}

func (s *RedisStore) Restore(ctx context.Context, ticket *Ticket) (bool, error) {
	record := newTicketRecord(ticket)
	args := append([]interface{}{record.EnqueuedAt, record.UserId}, record.fields()...)

	restored, err := restoreScript.Run(ctx, s.redisClient,
		[]string{waitingRedisKey, ticketRedisKey(ticket.UserId)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("restore userId[%v]: %w", ticket.UserId, err)
	}
	return restored == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, userId UserId) (*Ticket, error) {
	ticket, err := decodeTicket(s.redisClient.HGetAll(ctx, ticketRedisKey(userId)))
	if err != nil {
		return nil, fmt.Errorf("get userId[%v]: %w", userId, err)
	}
	return ticket, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.redisClient.ZCard(ctx, waitingRedisKey).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	staleBefore := s.clock.Now().Add(-s.stalePeriod).UnixMilli()
	userIds, err := s.redisClient.ZRangeByScore(ctx, waitingRedisKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(staleBefore, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	entries, err := s.getMany(ctx, userIds)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.missing {
			ok, err := s.prune(ctx, entry.userId)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
			continue
		}

		ticket := entry.ticket
		if ticket == nil {
			// Undecodable. Claimed by its raw id so a fresh ticket of the
			// same user is not touched.
			ticket = &Ticket{TicketId: entry.ticketId, UserId: entry.userId}
		}

		// Conditional, a user who enqueued again since the range read
		// keeps the new ticket.
		ok, err := s.Claim(ctx, ticket)
		if err != nil {
			return removed, err
		}
		if ok {
			s.logger.Debugf("removed stale ticket[%+v]", ticket)
			removed++
		}
	}
	return removed, nil
}
