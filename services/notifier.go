package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"queue-system/models"
	"queue-system/utils"
)

// Notifier carries lifecycle events to the notification collaborator. The
// core guarantees at-least-once emission per state transition; delivery,
// retries and channel selection belong entirely to the dispatcher behind
// this interface.
type Notifier interface {
	TokenCreated(token *models.Token)
	TokenCalled(token *models.Token)
	TokenCompleted(token *models.Token)
	TokenNoShow(token *models.Token)
	TokenCancelled(token *models.Token)
	RescheduleOpened(req *models.RescheduleRequest)
	RescheduleResolved(req *models.RescheduleRequest)
	CitizenPosition(citizenID, serviceID string, position int)
}

// PubNubNotifier publishes to per-citizen and per-service channels. A
// circuit breaker keeps a dead PubNub endpoint from slowing every state
// transition down; emission is at-least-once best effort, delivery is the
// dispatcher's problem.
type PubNubNotifier struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

func (n *PubNubNotifier) publish(channel string, message map[string]any) {
	err := n.breaker.Execute(func() error {
		_, pnStatus, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		if err != nil {
			return err
		}
		if pnStatus.Error != nil {
			return fmt.Errorf("pubnub status %d", pnStatus.StatusCode)
		}
		return nil
	})
	if err != nil {
		slog.Error("pubnub publish failed", "channel", channel, "error", err)
	}
}

func (n *PubNubNotifier) tokenEvent(kind string, token *models.Token) {
	message := map[string]any{
		"type":       kind,
		"token_id":   token.ID,
		"number":     token.Number,
		"service_id": token.ServiceID,
		"status":     string(token.Status),
	}
	if token.CounterID != "" {
		message["counter_id"] = token.CounterID
	}
	n.publish(fmt.Sprintf("citizen-%s", token.CitizenID), message)
	n.publish(fmt.Sprintf("service-%s", token.ServiceID), message)
}

func (n *PubNubNotifier) TokenCreated(token *models.Token) {
	n.tokenEvent("token_created", token)
}

func (n *PubNubNotifier) TokenCalled(token *models.Token) {
	n.tokenEvent("token_called", token)
}

func (n *PubNubNotifier) TokenCompleted(token *models.Token) {
	n.tokenEvent("token_completed", token)
}

func (n *PubNubNotifier) TokenNoShow(token *models.Token) {
	n.tokenEvent("token_no_show", token)
}

func (n *PubNubNotifier) TokenCancelled(token *models.Token) {
	n.tokenEvent("token_cancelled", token)
}

func (n *PubNubNotifier) RescheduleOpened(req *models.RescheduleRequest) {
	n.publish(fmt.Sprintf("citizen-%s", req.CitizenID), map[string]any{
		"type":       "reschedule_opened",
		"request_id": req.ID,
		"token_id":   req.TokenID,
		"expires_at": req.ExpiresAt,
	})
}

func (n *PubNubNotifier) RescheduleResolved(req *models.RescheduleRequest) {
	message := map[string]any{
		"type":       "reschedule_resolved",
		"request_id": req.ID,
		"token_id":   req.TokenID,
		"status":     string(req.Status),
	}
	if req.NewTokenID != "" {
		message["new_token_id"] = req.NewTokenID
	}
	n.publish(fmt.Sprintf("citizen-%s", req.CitizenID), message)
}

func (n *PubNubNotifier) CitizenPosition(citizenID, serviceID string, position int) {
	message := fmt.Sprintf("You are #%d in line", position)
	if position == 1 {
		message = "You're next!"
	} else if position <= 5 {
		message = fmt.Sprintf("Almost there! You're #%d", position)
	}

	n.publish(fmt.Sprintf("citizen-%s", citizenID), map[string]any{
		"type":       "queue_position",
		"position":   position,
		"service_id": serviceID,
		"message":    message,
	})
}

// NoopNotifier drops every event. Used in tests and when PubNub keys are
// not configured.
type NoopNotifier struct{}

func (NoopNotifier) TokenCreated(*models.Token)                   {}
func (NoopNotifier) TokenCalled(*models.Token)                    {}
func (NoopNotifier) TokenCompleted(*models.Token)                 {}
func (NoopNotifier) TokenNoShow(*models.Token)                    {}
func (NoopNotifier) TokenCancelled(*models.Token)                 {}
func (NoopNotifier) RescheduleOpened(*models.RescheduleRequest)   {}
func (NoopNotifier) RescheduleResolved(*models.RescheduleRequest) {}
func (NoopNotifier) CitizenPosition(string, string, int)          {}
