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

// OperationTracker records queue operations for monitoring. Implemented by
// monitoring.Monitor; tests run with the noop.
type OperationTracker interface {
	TrackTokenOperation(operation, serviceID, outcome string)
	TrackWaitEstimate(serviceID string, minutes int)
}

type noopTracker struct{}

func (noopTracker) TrackTokenOperation(string, string, string) {}
func (noopTracker) TrackWaitEstimate(string, int)              {}

// Rescheduler opens a reschedule offer for a no-show token. Satisfied by
// RescheduleCoordinator; declared as an interface because the coordinator
// also calls back into the engine to create replacement tokens.
type Rescheduler interface {
	Open(ctx context.Context, tokenID string) (*models.RescheduleRequest, error)
}

// Requester identifies who is asking for a token mutation.
type Requester struct {
	CitizenID string
	Staff     bool
}

// QueueEngine enforces the token state machine:
//
//	WAITING -> CALLED -> COMPLETED | NO_SHOW
//	WAITING | CALLED -> CANCELLED
//
// There is no recall and no other edge. Every mutation goes through the
// store's conditional transition, so concurrent staff actions settle on
// exactly one winner.
type QueueEngine struct {
	store        TokenStore
	directory    Directory
	gate         VerificationGate
	notifier     Notifier
	tracker      OperationTracker
	rescheduler  Rescheduler
	callAttempts int
}

func NewQueueEngine(store TokenStore, directory Directory, gate VerificationGate, notifier Notifier, callAttempts int) *QueueEngine {
	if callAttempts < 1 {
		callAttempts = 1
	}
	return &QueueEngine{
		store:        store,
		directory:    directory,
		gate:         gate,
		notifier:     notifier,
		tracker:      noopTracker{},
		callAttempts: callAttempts,
	}
}

// SetTracker replaces the noop monitoring hook.
func (e *QueueEngine) SetTracker(tracker OperationTracker) {
	e.tracker = tracker
}

// SetRescheduler wires the coordinator in after construction; the two
// reference each other.
func (e *QueueEngine) SetRescheduler(r Rescheduler) {
	e.rescheduler = r
}

// Join creates a WAITING token for the citizen. Elevated priorities must
// already carry an approved verification claim, otherwise the join fails
// with ErrPriorityUnverified and the citizen can resubmit as NORMAL.
func (e *QueueEngine) Join(ctx context.Context, serviceID, citizenID string, priority models.Priority) (*models.Token, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", status.ErrPriorityUnverified, priority)
	}

	if priority.Elevated() {
		decision, err := e.gate.Decide(ctx, citizenID, priority)
		if err != nil {
			return nil, fmt.Errorf("join: verification gate: %w", err)
		}
		if decision != models.VerificationApproved {
			e.tracker.TrackTokenOperation("join", serviceID, "unverified")
			return nil, fmt.Errorf("%w: %s claim is %s", status.ErrPriorityUnverified, priority, decision)
		}
	}

	return e.createToken(ctx, serviceID, citizenID, priority, "")
}

// createToken is shared by Join and the reschedule path. Reschedule joins
// skip the gate: the priority was verified when the original token was
// created and is inherited unchanged.
func (e *QueueEngine) createToken(ctx context.Context, serviceID, citizenID string, priority models.Priority, originTokenID string) (*models.Token, error) {
	service, err := e.directory.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !service.Active {
		return nil, fmt.Errorf("%w: service %s is inactive", status.ErrInvalidConfiguration, serviceID)
	}

	waiting, err := e.store.ListWaiting(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	estimate, err := Estimate(service.AvgHandleMin, len(waiting))
	if err != nil {
		return nil, err
	}
	e.tracker.TrackWaitEstimate(serviceID, estimate)

	now := time.Now()
	number, err := e.store.NextTokenNumber(ctx, serviceID, service.Code, now)
	if err != nil {
		return nil, err
	}

	id, err := utils.GenerateCode(8)
	if err != nil {
		return nil, err
	}

	token := &models.Token{
		ID:            strings.ToLower(id),
		Number:        number,
		ServiceID:     serviceID,
		CitizenID:     citizenID,
		Priority:      priority,
		Status:        models.TokenWaiting,
		JoinedAt:      now,
		EstimatedWait: estimate,
		OriginTokenID: originTokenID,
	}

	if err := e.store.CreateToken(ctx, token); err != nil {
		e.tracker.TrackTokenOperation("join", serviceID, "error")
		return nil, err
	}

	e.notifier.TokenCreated(token)
	e.tracker.TrackTokenOperation("join", serviceID, "success")
	return token, nil
}

// CallNext claims the highest-ranked waiting token for the counter. The
// ordering is recomputed from the live WAITING set on every call; losing a
// conditional claim just means another counter got there first, so the next
// candidate is tried, up to the configured bound.
func (e *QueueEngine) CallNext(ctx context.Context, counterID string) (*models.Token, error) {
	counter, err := e.directory.GetCounter(ctx, counterID)
	if err != nil {
		return nil, err
	}
	if !counter.Active {
		return nil, fmt.Errorf("%w: counter %s is inactive", status.ErrInvalidConfiguration, counterID)
	}

	waiting, err := e.store.ListWaiting(ctx, counter.ServiceID)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, fmt.Errorf("%w: service %s", status.ErrEmptyQueue, counter.ServiceID)
	}

	ranked := Rank(waiting)
	attempts := e.callAttempts
	if attempts > len(ranked) {
		attempts = len(ranked)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := 0; i < attempts; i++ {
		candidate := ranked[i]
		token, err := e.store.Transition(ctx, candidate.ID, models.TokenWaiting, models.TokenCalled, map[string]any{
			"counter_id": counterID,
			"called_at":  now,
		})
		if errors.Is(err, status.ErrConflict) {
			e.tracker.TrackTokenOperation("call_next", counter.ServiceID, "conflict")
			continue
		}
		if err != nil {
			return nil, err
		}

		e.notifier.TokenCalled(token)
		e.tracker.TrackTokenOperation("call_next", counter.ServiceID, "success")
		return token, nil
	}

	if len(ranked) <= e.callAttempts {
		// Every candidate was claimed elsewhere; the queue drained under us.
		return nil, fmt.Errorf("%w: service %s", status.ErrEmptyQueue, counter.ServiceID)
	}
	e.tracker.TrackTokenOperation("call_next", counter.ServiceID, "contended")
	return nil, fmt.Errorf("%w: service %s after %d attempts", status.ErrQueueContended, counter.ServiceID, e.callAttempts)
}

// Complete closes out a CALLED token as served.
func (e *QueueEngine) Complete(ctx context.Context, tokenID string) (*models.Token, error) {
	token, err := e.store.Transition(ctx, tokenID, models.TokenCalled, models.TokenCompleted, map[string]any{
		"completed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if errors.Is(err, status.ErrConflict) {
		return nil, fmt.Errorf("%w: complete: %v", status.ErrInvalidTransition, err)
	}
	if err != nil {
		return nil, err
	}

	e.notifier.TokenCompleted(token)
	e.tracker.TrackTokenOperation("complete", token.ServiceID, "success")
	return token, nil
}

// MarkNoShow records that a called citizen never appeared and opens the
// reschedule offer for them.
func (e *QueueEngine) MarkNoShow(ctx context.Context, tokenID string) (*models.Token, error) {
	token, err := e.store.Transition(ctx, tokenID, models.TokenCalled, models.TokenNoShow, map[string]any{
		"completed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if errors.Is(err, status.ErrConflict) {
		return nil, fmt.Errorf("%w: no-show: %v", status.ErrInvalidTransition, err)
	}
	if err != nil {
		return nil, err
	}

	e.notifier.TokenNoShow(token)
	e.tracker.TrackTokenOperation("no_show", token.ServiceID, "success")

	if e.rescheduler != nil {
		if _, err := e.rescheduler.Open(ctx, token.ID); err != nil && !errors.Is(err, status.ErrDuplicateOffer) {
			slog.Error("failed to open reschedule offer", "token_id", token.ID, "error", err)
		}
	}

	return token, nil
}

// Cancel withdraws a WAITING or CALLED token. Only the owning citizen or
// staff may cancel; a lost conditional race surfaces as ErrConflict so the
// caller can report "already handled".
func (e *QueueEngine) Cancel(ctx context.Context, tokenID string, requester Requester) (*models.Token, error) {
	token, err := e.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if !requester.Staff && requester.CitizenID != token.CitizenID {
		return nil, fmt.Errorf("%w: token %s", status.ErrNotAllowed, tokenID)
	}
	if token.Status != models.TokenWaiting && token.Status != models.TokenCalled {
		return nil, fmt.Errorf("%w: cancel from %s", status.ErrInvalidTransition, token.Status)
	}

	cancelled, err := e.store.Transition(ctx, tokenID, token.Status, models.TokenCancelled, map[string]any{
		"completed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	e.notifier.TokenCancelled(cancelled)
	e.tracker.TrackTokenOperation("cancel", cancelled.ServiceID, "success")
	return cancelled, nil
}

// Token returns the current state of a token.
func (e *QueueEngine) Token(ctx context.Context, tokenID string) (*models.Token, error) {
	return e.store.GetToken(ctx, tokenID)
}

// PositionOf returns the token's 1-based rank in its service queue, or 0
// when the token is no longer waiting.
func (e *QueueEngine) PositionOf(ctx context.Context, tokenID string) (int, error) {
	token, err := e.store.GetToken(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	if token.Status != models.TokenWaiting {
		return 0, nil
	}

	waiting, err := e.store.ListWaiting(ctx, token.ServiceID)
	if err != nil {
		return 0, err
	}

	return PositionIn(Rank(waiting), tokenID), nil
}
