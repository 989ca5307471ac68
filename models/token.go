package models

import (
	"time"
)

type TokenStatus string

const (
	TokenWaiting   TokenStatus = "waiting"
	TokenCalled    TokenStatus = "called"
	TokenCompleted TokenStatus = "completed"
	TokenNoShow    TokenStatus = "no_show"
	TokenCancelled TokenStatus = "cancelled"
)

// Terminal reports whether a token in this status can never transition again.
// Terminal tokens are kept for audit and analytics, never deleted.
func (s TokenStatus) Terminal() bool {
	return s == TokenCompleted || s == TokenNoShow || s == TokenCancelled
}

type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityDisabled  Priority = "disabled"
	PrioritySenior    Priority = "senior"
	PriorityNormal    Priority = "normal"
)

var priorityRanks = map[Priority]int{
	PriorityEmergency: 0,
	PriorityDisabled:  1,
	PrioritySenior:    2,
	PriorityNormal:    3,
}

// Rank returns the ordinal of the priority, lower served first. Unknown
// values rank after NORMAL so a corrupted record never jumps the queue.
func (p Priority) Rank() int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return len(priorityRanks)
}

// Elevated reports whether the priority requires an approved verification
// claim before a token may carry it.
func (p Priority) Elevated() bool {
	return p == PriorityEmergency || p == PriorityDisabled || p == PrioritySenior
}

func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Token is one citizen's place in a service queue. Priority is fixed at
// creation; getting a different priority means a new token via reschedule.
type Token struct {
	ID              string      `json:"id"`
	Number          string      `json:"number"`
	ServiceID       string      `json:"service_id"`
	CitizenID       string      `json:"citizen_id"`
	Priority        Priority    `json:"priority"`
	Status          TokenStatus `json:"status"`
	CounterID       string      `json:"counter_id,omitempty"`
	JoinedAt        time.Time   `json:"joined_at"`
	CalledAt        *time.Time  `json:"called_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	EstimatedWait   int         `json:"estimated_wait_min"`
	OriginTokenID   string      `json:"origin_token_id,omitempty"`
	RescheduleCount int         `json:"reschedule_count"`
}
