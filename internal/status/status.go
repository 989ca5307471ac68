package status

import "errors"

var (
	// ErrConflict means a conditional transition's expected-state
	// precondition failed: another caller won the race. Re-read and retry,
	// or surface "already handled".
	ErrConflict = errors.New("store: conditional transition conflict")

	// ErrInvalidTransition means the requested transition is not legal from
	// the record's current state. Caller error, never retried.
	ErrInvalidTransition = errors.New("queue: invalid transition")

	// ErrExpired means an action was attempted against a reschedule offer
	// past its TTL.
	ErrExpired = errors.New("reschedule: offer expired")

	// ErrEmptyQueue means no waiting token is eligible to call.
	ErrEmptyQueue = errors.New("queue: empty queue")

	// ErrQueueContended means call-next exhausted its bounded retries under
	// contention. Safe to retry later.
	ErrQueueContended = errors.New("queue: contended, retries exhausted")

	// ErrPriorityUnverified means a join requested elevated priority without
	// an approved verification claim.
	ErrPriorityUnverified = errors.New("queue: priority claim unverified")

	// ErrInvalidConfiguration means a service's handle-time parameter is
	// non-positive. Admin-facing fault, not a runtime outcome.
	ErrInvalidConfiguration = errors.New("service: invalid configuration")

	// ErrDuplicateOffer means a non-terminal reschedule offer already exists
	// for the token.
	ErrDuplicateOffer = errors.New("reschedule: duplicate offer")

	// ErrNotAllowed means the requester may not perform the operation on
	// this token (cancel by a non-owner, for example).
	ErrNotAllowed = errors.New("queue: requester not allowed")

	// ErrNotFound means the token or reschedule request does not exist.
	ErrNotFound = errors.New("store: not found")
)
