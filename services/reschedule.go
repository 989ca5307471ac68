package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/utils"
)

// RescheduleCoordinator owns the offer state machine:
//
//	PENDING -> ACCEPTED | DECLINED | EXPIRED
//
// All three resolutions go through the store's conditional update, so a
// citizen double-tapping accept, a decline racing the sweep, and two sweep
// schedulers running at once all collapse to a single winner.
type RescheduleCoordinator struct {
	store    RescheduleStore
	tokens   TokenStore
	engine   *QueueEngine
	notifier Notifier
	tracker  OperationTracker
	ttl      time.Duration
}

func NewRescheduleCoordinator(store RescheduleStore, tokens TokenStore, engine *QueueEngine, notifier Notifier, ttl time.Duration) *RescheduleCoordinator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RescheduleCoordinator{
		store:    store,
		tokens:   tokens,
		engine:   engine,
		notifier: notifier,
		tracker:  noopTracker{},
		ttl:      ttl,
	}
}

func (c *RescheduleCoordinator) SetTracker(tracker OperationTracker) {
	c.tracker = tracker
}

// Open creates a PENDING offer for a no-show token. The TTL is fixed at
// creation and never mutated afterwards.
func (c *RescheduleCoordinator) Open(ctx context.Context, tokenID string) (*models.RescheduleRequest, error) {
	token, err := c.tokens.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Status != models.TokenNoShow {
		return nil, fmt.Errorf("%w: reschedule offer for %s token", status.ErrInvalidTransition, token.Status)
	}

	id, err := utils.GenerateCode(8)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &models.RescheduleRequest{
		ID:        strings.ToLower(id),
		TokenID:   token.ID,
		CitizenID: token.CitizenID,
		Status:    models.ReschedulePending,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	if err := c.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	c.notifier.RescheduleOpened(req)
	c.tracker.TrackTokenOperation("reschedule_open", token.ServiceID, "success")
	return req, nil
}

// Accept resolves the offer and re-queues the citizen with the original
// token's service and priority. The conditional PENDING -> ACCEPTED update
// happens before the new token is created, so a second accept finds the
// request already resolved and fails with ErrConflict — exactly one
// replacement token can ever exist.
func (c *RescheduleCoordinator) Accept(ctx context.Context, requestID string) (*models.Token, error) {
	if _, err := c.guardPending(ctx, requestID); err != nil {
		return nil, err
	}

	resolved, err := c.store.ResolveRequest(ctx, requestID, models.RescheduleAccepted, map[string]any{
		"resolved_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	origin, err := c.tokens.GetToken(ctx, resolved.TokenID)
	if err != nil {
		return nil, err
	}

	token, err := c.engine.createToken(ctx, origin.ServiceID, origin.CitizenID, origin.Priority, origin.ID)
	if err != nil {
		return nil, fmt.Errorf("reschedule accept: rejoin: %w", err)
	}

	if err := c.tokens.IncrementReschedules(ctx, origin.ID); err != nil {
		slog.Error("failed to bump reschedule count", "token_id", origin.ID, "error", err)
	}
	if err := c.store.SetNewToken(ctx, requestID, token.ID); err != nil {
		slog.Error("failed to record replacement token", "request_id", requestID, "error", err)
	}

	resolved.NewTokenID = token.ID
	c.notifier.RescheduleResolved(resolved)
	c.tracker.TrackTokenOperation("reschedule_accept", origin.ServiceID, "success")
	return token, nil
}

// Decline resolves the offer without creating a token.
func (c *RescheduleCoordinator) Decline(ctx context.Context, requestID string) error {
	if _, err := c.guardPending(ctx, requestID); err != nil {
		return err
	}

	resolved, err := c.store.ResolveRequest(ctx, requestID, models.RescheduleDeclined, map[string]any{
		"resolved_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	c.notifier.RescheduleResolved(resolved)
	return nil
}

// guardPending rejects actions on resolved or expired offers. An expired
// but still-PENDING request is swept lazily here rather than waiting for
// the periodic sweeper.
func (c *RescheduleCoordinator) guardPending(ctx context.Context, requestID string) (*models.RescheduleRequest, error) {
	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != models.ReschedulePending {
		if req.Status == models.RescheduleExpired {
			return nil, fmt.Errorf("%w: request %s", status.ErrExpired, requestID)
		}
		return nil, fmt.Errorf("%w: request %s already %s", status.ErrConflict, requestID, req.Status)
	}

	if req.Expired(time.Now()) {
		c.expire(ctx, requestID)
		return nil, fmt.Errorf("%w: request %s", status.ErrExpired, requestID)
	}

	return req, nil
}

// SweepExpired transitions every overdue PENDING offer to EXPIRED and
// returns how many it closed. Idempotent and safe to run from multiple
// schedulers: each expiry is its own conditional transition.
func (c *RescheduleCoordinator) SweepExpired(ctx context.Context) (int, error) {
	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	expired := 0
	for _, req := range pending {
		if !req.Expired(now) {
			continue
		}
		if c.expire(ctx, req.ID) {
			expired++
		}
	}

	return expired, nil
}

func (c *RescheduleCoordinator) expire(ctx context.Context, requestID string) bool {
	resolved, err := c.store.ResolveRequest(ctx, requestID, models.RescheduleExpired, map[string]any{
		"resolved_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if errors.Is(err, status.ErrConflict) {
		// Another sweeper or the citizen got there first.
		return false
	}
	if err != nil {
		slog.Error("failed to expire reschedule offer", "request_id", requestID, "error", err)
		return false
	}

	c.notifier.RescheduleResolved(resolved)
	return true
}

// Get returns the offer after lazily sweeping it if overdue, so readers
// never observe a PENDING request that is actually past its TTL.
func (c *RescheduleCoordinator) Get(ctx context.Context, requestID string) (*models.RescheduleRequest, error) {
	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status == models.ReschedulePending && req.Expired(time.Now()) {
		c.expire(ctx, requestID)
		return c.store.GetRequest(ctx, requestID)
	}

	return req, nil
}
