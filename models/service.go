package models

// Service is a municipal service definition owned by the admin collaborator.
// The core treats it as read-only configuration; AvgHandleMin feeds the
// wait estimator and must be positive for estimates to work.
type Service struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Code         string `db:"code" json:"code"`
	AvgHandleMin int    `db:"avg_handle_min" json:"avg_handle_min"`
	Active       bool   `db:"active" json:"active"`
}

// Counter is a physical or virtual service point. Counters are created and
// retired by the staff-assignment collaborator; the core only records which
// counter called a token.
type Counter struct {
	ID        string `db:"id" json:"id"`
	ServiceID string `db:"service" json:"service_id"`
	Name      string `db:"name" json:"name"`
	Active    bool   `db:"active" json:"active"`
}

// VerificationDecision is the outcome of a priority-claim review performed
// by the external verification collaborator.
type VerificationDecision string

const (
	VerificationApproved VerificationDecision = "approved"
	VerificationRejected VerificationDecision = "rejected"
	VerificationPending  VerificationDecision = "pending"
)
