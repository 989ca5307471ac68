package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-system/internal/status"
	"queue-system/models"
)

func testDirectory() *memDirectory {
	return &memDirectory{
		services: map[string]models.Service{
			"civil": {ID: "civil", Name: "Civil Registry", Code: "B", AvgHandleMin: 10, Active: true},
			"tax":   {ID: "tax", Name: "Tax Office", Code: "C", AvgHandleMin: 5, Active: true},
		},
		counters: map[string]models.Counter{
			"desk-1": {ID: "desk-1", ServiceID: "civil", Name: "Desk 1", Active: true},
			"desk-2": {ID: "desk-2", ServiceID: "civil", Name: "Desk 2", Active: true},
			"closed": {ID: "closed", ServiceID: "civil", Name: "Closed Desk", Active: false},
		},
	}
}

func setupEngine(gate VerificationGate) (*QueueEngine, *memTokenStore, *captureNotifier) {
	store := newMemTokenStore()
	notifier := &captureNotifier{}
	engine := NewQueueEngine(store, testDirectory(), gate, notifier, 3)
	return engine, store, notifier
}

func TestJoin_NormalPriority(t *testing.T) {
	engine, _, notifier := setupEngine(StaticVerificationGate{Decision: models.VerificationPending})

	token, err := engine.Join(context.Background(), "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)

	assert.Equal(t, models.TokenWaiting, token.Status)
	assert.Equal(t, models.PriorityNormal, token.Priority)
	assert.Equal(t, "B-001", token.Number)
	assert.Equal(t, 0, token.EstimatedWait)
	assert.True(t, notifier.has("created:"+token.ID))
}

func TestJoin_EstimateScalesWithQueueDepth(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
		require.NoError(t, err)
	}

	token, err := engine.Join(ctx, "civil", "citizen-2", models.PriorityNormal)
	require.NoError(t, err)
	// Three ahead at 10 minutes each.
	assert.Equal(t, 30, token.EstimatedWait)
}

func TestJoin_ElevatedPriorityRequiresApproval(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationPending})

	_, err := engine.Join(context.Background(), "civil", "citizen-1", models.PriorityDisabled)
	assert.ErrorIs(t, err, status.ErrPriorityUnverified)
}

func TestJoin_ElevatedPriorityWithApproval(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})

	token, err := engine.Join(context.Background(), "civil", "citizen-1", models.PriorityDisabled)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityDisabled, token.Priority)
}

func TestJoin_RejectedClaim(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationRejected})

	_, err := engine.Join(context.Background(), "civil", "citizen-1", models.PrioritySenior)
	assert.ErrorIs(t, err, status.ErrPriorityUnverified)
}

func TestJoin_UnknownPriority(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})

	_, err := engine.Join(context.Background(), "civil", "citizen-1", models.Priority("vip"))
	assert.Error(t, err)
}

func TestJoin_InvalidHandleTimeConfiguration(t *testing.T) {
	store := newMemTokenStore()
	directory := testDirectory()
	directory.services["broken"] = models.Service{ID: "broken", Code: "X", AvgHandleMin: 0, Active: true}
	engine := NewQueueEngine(store, directory, StaticVerificationGate{Decision: models.VerificationApproved}, &captureNotifier{}, 3)

	_, err := engine.Join(context.Background(), "broken", "citizen-1", models.PriorityNormal)
	assert.ErrorIs(t, err, status.ErrInvalidConfiguration)
}

func TestCallNext_EmptyQueue(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})

	_, err := engine.CallNext(context.Background(), "desk-1")
	assert.ErrorIs(t, err, status.ErrEmptyQueue)
}

func TestCallNext_InactiveCounter(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})

	_, err := engine.CallNext(context.Background(), "closed")
	assert.ErrorIs(t, err, status.ErrInvalidConfiguration)
}

func TestCallNext_TakesHighestPriority(t *testing.T) {
	engine, _, notifier := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	_, err := engine.Join(ctx, "civil", "citizen-normal", models.PriorityNormal)
	require.NoError(t, err)
	senior, err := engine.Join(ctx, "civil", "citizen-senior", models.PrioritySenior)
	require.NoError(t, err)

	called, err := engine.CallNext(ctx, "desk-1")
	require.NoError(t, err)

	assert.Equal(t, senior.ID, called.ID)
	assert.Equal(t, models.TokenCalled, called.Status)
	assert.Equal(t, "desk-1", called.CounterID)
	require.NotNil(t, called.CalledAt)
	assert.True(t, notifier.has("called:"+called.ID))
}

func TestCallNext_AtMostOneClaim(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	token, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)

	const callers = 20
	var wg sync.WaitGroup
	winners := make(chan string, callers)
	failures := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			called, err := engine.CallNext(ctx, "desk-1")
			if err != nil {
				failures <- err
				return
			}
			winners <- called.ID
		}()
	}
	wg.Wait()
	close(winners)
	close(failures)

	won := []string{}
	for id := range winners {
		won = append(won, id)
	}
	require.Len(t, won, 1, "exactly one caller must claim the token")
	assert.Equal(t, token.ID, won[0])

	for err := range failures {
		ok := errors.Is(err, status.ErrEmptyQueue) || errors.Is(err, status.ErrConflict) || errors.Is(err, status.ErrQueueContended)
		assert.True(t, ok, "unexpected failure: %v", err)
	}
}

func TestComplete_RequiresCalled(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	token, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)

	_, err = engine.Complete(ctx, token.ID)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
}

func TestComplete_CalledToken(t *testing.T) {
	engine, _, notifier := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	_, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)
	called, err := engine.CallNext(ctx, "desk-1")
	require.NoError(t, err)

	completed, err := engine.Complete(ctx, called.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TokenCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, notifier.has("completed:"+completed.ID))

	// Terminal; a second complete is a caller error.
	_, err = engine.Complete(ctx, called.ID)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
}

func TestMarkNoShow_RequiresCalled(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	token, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)

	_, err = engine.MarkNoShow(ctx, token.ID)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
}

func TestMarkNoShow_OpensRescheduleOffer(t *testing.T) {
	engine, store, notifier := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	coordinator := NewRescheduleCoordinator(newMemRescheduleStore(), store, engine, notifier, time.Hour)
	engine.SetRescheduler(coordinator)
	ctx := context.Background()

	_, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)
	called, err := engine.CallNext(ctx, "desk-1")
	require.NoError(t, err)

	noShow, err := engine.MarkNoShow(ctx, called.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TokenNoShow, noShow.Status)
	assert.True(t, notifier.has("no_show:"+noShow.ID))

	// A PENDING offer now exists for the token.
	pending, err := coordinator.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending) // fresh offer, nothing to expire
}

func TestCancel_OwnerOnly(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	token, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, token.ID, Requester{CitizenID: "someone-else"})
	assert.ErrorIs(t, err, status.ErrNotAllowed)

	cancelled, err := engine.Cancel(ctx, token.ID, Requester{CitizenID: "citizen-1"})
	require.NoError(t, err)
	assert.Equal(t, models.TokenCancelled, cancelled.Status)
}

func TestCancel_StaffMayCancelCalled(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	_, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)
	called, err := engine.CallNext(ctx, "desk-1")
	require.NoError(t, err)

	cancelled, err := engine.Cancel(ctx, called.ID, Requester{Staff: true})
	require.NoError(t, err)
	assert.Equal(t, models.TokenCancelled, cancelled.Status)
}

func TestCancel_TerminalTokenRejected(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	_, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)
	called, err := engine.CallNext(ctx, "desk-1")
	require.NoError(t, err)
	_, err = engine.Complete(ctx, called.ID)
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, called.ID, Requester{Staff: true})
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
}

func TestPositionOf(t *testing.T) {
	engine, _, _ := setupEngine(StaticVerificationGate{Decision: models.VerificationApproved})
	ctx := context.Background()

	first, err := engine.Join(ctx, "civil", "citizen-1", models.PriorityNormal)
	require.NoError(t, err)
	second, err := engine.Join(ctx, "civil", "citizen-2", models.PriorityNormal)
	require.NoError(t, err)

	pos, err := engine.PositionOf(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	// An emergency join overtakes both.
	urgent, err := engine.Join(ctx, "civil", "citizen-3", models.PriorityEmergency)
	require.NoError(t, err)

	pos, err = engine.PositionOf(ctx, urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = engine.PositionOf(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	// Position is meaningless once called.
	called, err := engine.CallNext(ctx, "desk-1")
	require.NoError(t, err)
	require.Equal(t, urgent.ID, called.ID)

	pos, err = engine.PositionOf(ctx, urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = engine.PositionOf(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}
