package models

import (
	"time"
)

type RescheduleStatus string

const (
	ReschedulePending  RescheduleStatus = "pending"
	RescheduleAccepted RescheduleStatus = "accepted"
	RescheduleDeclined RescheduleStatus = "declined"
	RescheduleExpired  RescheduleStatus = "expired"
)

func (s RescheduleStatus) Terminal() bool {
	return s != ReschedulePending
}

// RescheduleRequest is a time-limited offer to re-queue a no-show token.
// At most one non-terminal request exists per token; ACCEPTED produces
// exactly one new token linked back through Token.OriginTokenID.
type RescheduleRequest struct {
	ID         string           `json:"id"`
	TokenID    string           `json:"token_id"`
	CitizenID  string           `json:"citizen_id"`
	Status     RescheduleStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	NewTokenID string           `json:"new_token_id,omitempty"`
}

// Expired reports whether the offer TTL has elapsed at the given instant.
// Only meaningful while the request is still PENDING.
func (r *RescheduleRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
