package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-system/internal/status"
	"queue-system/models"
)

func setupRescheduleStore() (*RedisRescheduleStore, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewRedisRescheduleStore(db), mock
}

func pendingRequestData(id string) map[string]string {
	return map[string]string{
		"id":         id,
		"token_id":   "tok123",
		"citizen_id": "citizen-1",
		"status":     "pending",
		"created_at": "2026-08-31T09:00:00Z",
		"expires_at": "2026-09-01T09:00:00Z",
	}
}

func TestRescheduleStore_CreateRequest(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	req := &models.RescheduleRequest{
		ID:        "req123",
		TokenID:   "tok123",
		CitizenID: "citizen-1",
		Status:    models.ReschedulePending,
		CreatedAt: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	}

	keys := []string{"reschedule:token:tok123", "reschedule:req123", "reschedule:pending"}
	mock.ExpectEval(openOfferScript, keys,
		"req123",
		"citizen_id", "citizen-1",
		"created_at", "2026-08-31T09:00:00Z",
		"expires_at", "2026-09-01T09:00:00Z",
		"id", "req123",
		"status", "pending",
		"token_id", "tok123",
	).SetVal(int64(1))

	err := store.CreateRequest(context.Background(), req)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_CreateRequest_Duplicate(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	req := &models.RescheduleRequest{
		ID:        "req456",
		TokenID:   "tok123",
		CitizenID: "citizen-1",
		Status:    models.ReschedulePending,
		CreatedAt: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
	}

	keys := []string{"reschedule:token:tok123", "reschedule:req456", "reschedule:pending"}
	mock.ExpectEval(openOfferScript, keys,
		"req456",
		"citizen_id", "citizen-1",
		"created_at", "2026-08-31T09:00:00Z",
		"expires_at", "2026-09-01T09:00:00Z",
		"id", "req456",
		"status", "pending",
		"token_id", "tok123",
	).SetVal(int64(0))

	err := store.CreateRequest(context.Background(), req)
	assert.ErrorIs(t, err, status.ErrDuplicateOffer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_GetRequest(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reschedule:req123").SetVal(pendingRequestData("req123"))

	req, err := store.GetRequest(context.Background(), "req123")
	require.NoError(t, err)

	assert.Equal(t, "req123", req.ID)
	assert.Equal(t, "tok123", req.TokenID)
	assert.Equal(t, models.ReschedulePending, req.Status)
	assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), req.ExpiresAt)
	assert.Nil(t, req.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_GetRequest_Missing(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reschedule:missing").SetVal(map[string]string{})

	_, err := store.GetRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_ListPending(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	mock.ExpectSMembers("reschedule:pending").SetVal([]string{"req1", "req2"})
	mock.ExpectHGetAll("reschedule:req1").SetVal(pendingRequestData("req1"))

	resolved := pendingRequestData("req2")
	resolved["status"] = "declined"
	mock.ExpectHGetAll("reschedule:req2").SetVal(resolved)

	pending, err := store.ListPending(context.Background())
	require.NoError(t, err)

	require.Len(t, pending, 1)
	assert.Equal(t, "req1", pending[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_ResolveRequest_Success(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reschedule:req123").SetVal(pendingRequestData("req123"))

	keys := []string{"reschedule:req123", "reschedule:pending", "reschedule:token:tok123"}
	mock.ExpectEval(resolveOfferScript, keys,
		"pending", "accepted", "req123",
		"resolved_at", "2026-08-31T12:00:00Z",
	).SetVal([]interface{}{int64(1), "accepted"})

	accepted := pendingRequestData("req123")
	accepted["status"] = "accepted"
	accepted["resolved_at"] = "2026-08-31T12:00:00Z"
	mock.ExpectHGetAll("reschedule:req123").SetVal(accepted)

	req, err := store.ResolveRequest(context.Background(), "req123", models.RescheduleAccepted, map[string]any{
		"resolved_at": "2026-08-31T12:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, models.RescheduleAccepted, req.Status)
	require.NotNil(t, req.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_ResolveRequest_AlreadyResolved(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	declined := pendingRequestData("req123")
	declined["status"] = "declined"
	mock.ExpectHGetAll("reschedule:req123").SetVal(declined)

	keys := []string{"reschedule:req123", "reschedule:pending", "reschedule:token:tok123"}
	mock.ExpectEval(resolveOfferScript, keys,
		"pending", "expired", "req123",
		"resolved_at", "2026-08-31T12:00:00Z",
	).SetVal([]interface{}{int64(0), "declined"})

	_, err := store.ResolveRequest(context.Background(), "req123", models.RescheduleExpired, map[string]any{
		"resolved_at": "2026-08-31T12:00:00Z",
	})
	assert.ErrorIs(t, err, status.ErrConflict)
	assert.Contains(t, err.Error(), "already declined")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleStore_SetNewToken(t *testing.T) {
	store, mock := setupRescheduleStore()
	defer mock.ClearExpect()

	mock.ExpectHSet("reschedule:req123", "new_token_id", "tok999").SetVal(1)

	err := store.SetNewToken(context.Background(), "req123", "tok999")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
