package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"queue-system/internal/status"
	"queue-system/models"
)

// transitionScript is the single concurrency guard of the whole core: it
// applies a status change and its field writes only when the token still
// holds the expected status, and keeps the waiting/terminal indexes in step
// inside the same atomic step. Two staff calling the same token, or a
// citizen double-tapping cancel, resolve here — one wins, the rest see the
// current status.
const transitionScript = `
local current = redis.call("HGET", KEYS[1], "status")
if current == false then
  return {-1, ""}
end
if current ~= ARGV[1] then
  return {0, current}
end
for i = 4, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call("HSET", KEYS[1], "status", ARGV[2])
if ARGV[1] == "waiting" then
  redis.call("SREM", KEYS[2], ARGV[3])
end
if ARGV[2] == "completed" or ARGV[2] == "no_show" or ARGV[2] == "cancelled" then
  redis.call("SADD", KEYS[3], ARGV[3])
end
return {1, ARGV[2]}
`

// TokenStore is the authoritative token collection. Implementations must
// make Transition an all-or-nothing conditional update; everything else is
// plain reads.
type TokenStore interface {
	CreateToken(ctx context.Context, token *models.Token) error
	GetToken(ctx context.Context, id string) (*models.Token, error)
	ListWaiting(ctx context.Context, serviceID string) ([]models.Token, error)
	Transition(ctx context.Context, id string, expected, next models.TokenStatus, fields map[string]any) (*models.Token, error)
	NextTokenNumber(ctx context.Context, serviceID, serviceCode string, day time.Time) (string, error)
	IncrementReschedules(ctx context.Context, id string) error
}

type RedisTokenStore struct {
	Redis *redis.Client
}

func NewRedisTokenStore(redisClient *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{Redis: redisClient}
}

func tokenKey(id string) string {
	return fmt.Sprintf("token:%s", id)
}

func waitingKey(serviceID string) string {
	return fmt.Sprintf("queue:waiting:%s", serviceID)
}

func terminalKey(serviceID string, day time.Time) string {
	return fmt.Sprintf("queue:terminal:%s:%s", serviceID, day.Format("20060102"))
}

func (s *RedisTokenStore) CreateToken(ctx context.Context, token *models.Token) error {
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey(token.ID), tokenHash(token))
		pipe.SAdd(ctx, waitingKey(token.ServiceID), token.ID)
		pipe.SAdd(ctx, "active_services", token.ServiceID)
		return nil
	})
	return err
}

func (s *RedisTokenStore) GetToken(ctx context.Context, id string) (*models.Token, error) {
	data, err := s.Redis.HGetAll(ctx, tokenKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: token %s", status.ErrNotFound, id)
	}
	return tokenFromHash(data), nil
}

func (s *RedisTokenStore) ListWaiting(ctx context.Context, serviceID string) ([]models.Token, error) {
	ids, err := s.Redis.SMembers(ctx, waitingKey(serviceID)).Result()
	if err != nil {
		return nil, err
	}

	tokens := make([]models.Token, 0, len(ids))
	for _, id := range ids {
		data, err := s.Redis.HGetAll(ctx, tokenKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			// Index entry without a hash; skip rather than fail the read.
			continue
		}
		token := tokenFromHash(data)
		if token.Status != models.TokenWaiting {
			continue
		}
		tokens = append(tokens, *token)
	}

	return tokens, nil
}

// Transition applies expected -> next with the given extra fields, or fails
// with ErrConflict and no mutation when the token's status moved underneath
// the caller.
func (s *RedisTokenStore) Transition(ctx context.Context, id string, expected, next models.TokenStatus, fields map[string]any) (*models.Token, error) {
	args := []any{string(expected), string(next), id}
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		args = append(args, field, fields[field])
	}

	// The waiting/terminal keys need the service id, which lives on the
	// token itself. Read it first; the script still re-checks status
	// atomically, so this pre-read carries no race.
	token, err := s.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := []string{
		tokenKey(id),
		waitingKey(token.ServiceID),
		terminalKey(token.ServiceID, time.Now()),
	}

	result, err := s.Redis.Eval(ctx, transitionScript, keys, args...).Result()
	if err != nil {
		return nil, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil, fmt.Errorf("transition: unexpected script reply %v", result)
	}

	switch code, _ := values[0].(int64); code {
	case 1:
		return s.GetToken(ctx, id)
	case 0:
		current, _ := values[1].(string)
		return nil, fmt.Errorf("%w: token %s is %s, expected %s", status.ErrConflict, id, current, expected)
	default:
		return nil, fmt.Errorf("%w: token %s", status.ErrNotFound, id)
	}
}

// NextTokenNumber allocates the next human-readable label for a service,
// scoped per day ("B-017"). Redis INCR makes the sequence race-free across
// concurrent joins.
func (s *RedisTokenStore) NextTokenNumber(ctx context.Context, serviceID, serviceCode string, day time.Time) (string, error) {
	seqKey := fmt.Sprintf("seq:%s:%s", serviceID, day.Format("20060102"))
	seq, err := s.Redis.Incr(ctx, seqKey).Result()
	if err != nil {
		return "", err
	}
	// Sequences survive restarts but not forever; two days is plenty.
	s.Redis.Expire(ctx, seqKey, 48*time.Hour)

	return fmt.Sprintf("%s-%03d", serviceCode, seq), nil
}

func (s *RedisTokenStore) IncrementReschedules(ctx context.Context, id string) error {
	return s.Redis.HIncrBy(ctx, tokenKey(id), "reschedule_count", 1).Err()
}

func tokenHash(t *models.Token) map[string]any {
	fields := map[string]any{
		"id":               t.ID,
		"number":           t.Number,
		"service_id":       t.ServiceID,
		"citizen_id":       t.CitizenID,
		"priority":         string(t.Priority),
		"status":           string(t.Status),
		"joined_at":        t.JoinedAt.UTC().Format(time.RFC3339Nano),
		"estimated_wait":   t.EstimatedWait,
		"reschedule_count": t.RescheduleCount,
	}
	if t.CounterID != "" {
		fields["counter_id"] = t.CounterID
	}
	if t.OriginTokenID != "" {
		fields["origin_token_id"] = t.OriginTokenID
	}
	return fields
}

func tokenFromHash(data map[string]string) *models.Token {
	token := &models.Token{
		ID:            data["id"],
		Number:        data["number"],
		ServiceID:     data["service_id"],
		CitizenID:     data["citizen_id"],
		Priority:      models.Priority(data["priority"]),
		Status:        models.TokenStatus(data["status"]),
		CounterID:     data["counter_id"],
		OriginTokenID: data["origin_token_id"],
	}
	token.JoinedAt, _ = time.Parse(time.RFC3339Nano, data["joined_at"])
	token.EstimatedWait, _ = strconv.Atoi(data["estimated_wait"])
	token.RescheduleCount, _ = strconv.Atoi(data["reschedule_count"])
	if v, ok := data["called_at"]; ok && v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			token.CalledAt = &ts
		}
	}
	if v, ok := data["completed_at"]; ok && v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			token.CompletedAt = &ts
		}
	}
	return token
}
