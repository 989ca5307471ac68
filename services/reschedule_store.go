package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"queue-system/internal/status"
	"queue-system/models"
)

// openOfferScript creates a PENDING request only when no non-terminal offer
// exists for the token yet. The guard key holds the open request's id and
// lives exactly as long as the request is PENDING.
const openOfferScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
for i = 2, #ARGV, 2 do
  redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 1])
end
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`

// resolveOfferScript moves a request PENDING -> terminal, dropping it from
// the pending index and releasing the per-token guard in the same step.
// Accept, decline and the expiry sweep all race through here; the status
// check decides the winner.
const resolveOfferScript = `
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
redis.call("SREM", KEYS[2], ARGV[3])
redis.call("DEL", KEYS[3])
return {1, ARGV[2]}
`

// RescheduleStore persists reschedule offers with the same conditional
// discipline TokenStore applies to tokens.
type RescheduleStore interface {
	CreateRequest(ctx context.Context, req *models.RescheduleRequest) error
	GetRequest(ctx context.Context, id string) (*models.RescheduleRequest, error)
	ListPending(ctx context.Context) ([]models.RescheduleRequest, error)
	ResolveRequest(ctx context.Context, id string, next models.RescheduleStatus, fields map[string]any) (*models.RescheduleRequest, error)
	SetNewToken(ctx context.Context, id, tokenID string) error
}

type RedisRescheduleStore struct {
	Redis *redis.Client
}

func NewRedisRescheduleStore(redisClient *redis.Client) *RedisRescheduleStore {
	return &RedisRescheduleStore{Redis: redisClient}
}

func requestKey(id string) string {
	return fmt.Sprintf("reschedule:%s", id)
}

func offerGuardKey(tokenID string) string {
	return fmt.Sprintf("reschedule:token:%s", tokenID)
}

const pendingIndexKey = "reschedule:pending"

func (s *RedisRescheduleStore) CreateRequest(ctx context.Context, req *models.RescheduleRequest) error {
	args := []any{req.ID}
	fields := requestHash(req)
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		args = append(args, field, fields[field])
	}

	keys := []string{offerGuardKey(req.TokenID), requestKey(req.ID), pendingIndexKey}
	created, err := s.Redis.Eval(ctx, openOfferScript, keys, args...).Int64()
	if err != nil {
		return err
	}
	if created == 0 {
		return fmt.Errorf("%w: token %s", status.ErrDuplicateOffer, req.TokenID)
	}
	return nil
}

func (s *RedisRescheduleStore) GetRequest(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	data, err := s.Redis.HGetAll(ctx, requestKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: reschedule request %s", status.ErrNotFound, id)
	}
	return requestFromHash(data), nil
}

func (s *RedisRescheduleStore) ListPending(ctx context.Context) ([]models.RescheduleRequest, error) {
	ids, err := s.Redis.SMembers(ctx, pendingIndexKey).Result()
	if err != nil {
		return nil, err
	}

	requests := make([]models.RescheduleRequest, 0, len(ids))
	for _, id := range ids {
		data, err := s.Redis.HGetAll(ctx, requestKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		req := requestFromHash(data)
		if req.Status != models.ReschedulePending {
			continue
		}
		requests = append(requests, *req)
	}

	return requests, nil
}

func (s *RedisRescheduleStore) ResolveRequest(ctx context.Context, id string, next models.RescheduleStatus, fields map[string]any) (*models.RescheduleRequest, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	args := []any{string(models.ReschedulePending), string(next), id}
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		args = append(args, field, fields[field])
	}

	keys := []string{requestKey(id), pendingIndexKey, offerGuardKey(req.TokenID)}
	result, err := s.Redis.Eval(ctx, resolveOfferScript, keys, args...).Result()
	if err != nil {
		return nil, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil, fmt.Errorf("resolve: unexpected script reply %v", result)
	}

	switch code, _ := values[0].(int64); code {
	case 1:
		return s.GetRequest(ctx, id)
	case 0:
		current, _ := values[1].(string)
		return nil, fmt.Errorf("%w: request %s already %s", status.ErrConflict, id, current)
	default:
		return nil, fmt.Errorf("%w: reschedule request %s", status.ErrNotFound, id)
	}
}

// SetNewToken records the token an ACCEPTED request produced. Plain write:
// the request is already terminal, there is nothing left to race over.
func (s *RedisRescheduleStore) SetNewToken(ctx context.Context, id, tokenID string) error {
	return s.Redis.HSet(ctx, requestKey(id), "new_token_id", tokenID).Err()
}

func requestHash(r *models.RescheduleRequest) map[string]any {
	fields := map[string]any{
		"id":         r.ID,
		"token_id":   r.TokenID,
		"citizen_id": r.CitizenID,
		"status":     string(r.Status),
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": r.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	return fields
}

func requestFromHash(data map[string]string) *models.RescheduleRequest {
	req := &models.RescheduleRequest{
		ID:         data["id"],
		TokenID:    data["token_id"],
		CitizenID:  data["citizen_id"],
		Status:     models.RescheduleStatus(data["status"]),
		NewTokenID: data["new_token_id"],
	}
	req.CreatedAt, _ = time.Parse(time.RFC3339Nano, data["created_at"])
	req.ExpiresAt, _ = time.Parse(time.RFC3339Nano, data["expires_at"])
	if v, ok := data["resolved_at"]; ok && v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			req.ResolvedAt = &ts
		}
	}
	return req
}
