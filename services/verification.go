package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/models"
)

// VerificationGate answers whether a citizen's elevated-priority claim has
// been approved. The review itself (documents, OCR, the emergency
// classifier) happens in external collaborators; the core only consults the
// recorded outcome.
type VerificationGate interface {
	Decide(ctx context.Context, citizenID string, priority models.Priority) (models.VerificationDecision, error)
}

// RecordVerificationGate reads decisions from the verifications collection,
// where the admin review panel writes them. EMERGENCY claims can be
// auto-approved when the upstream emergency classifier is trusted to have
// triaged the request already.
type RecordVerificationGate struct {
	app                  core.App
	autoApproveEmergency bool
}

func NewRecordVerificationGate(app core.App, autoApproveEmergency bool) *RecordVerificationGate {
	return &RecordVerificationGate{app: app, autoApproveEmergency: autoApproveEmergency}
}

func (g *RecordVerificationGate) Decide(ctx context.Context, citizenID string, priority models.Priority) (models.VerificationDecision, error) {
	if !priority.Elevated() {
		return models.VerificationApproved, nil
	}
	if priority == models.PriorityEmergency && g.autoApproveEmergency {
		return models.VerificationApproved, nil
	}

	var row struct {
		Decision string `db:"decision"`
	}
	err := g.app.DB().
		Select("decision").
		From("verifications").
		Where(dbx.HashExp{"citizen": citizenID, "claim": string(priority)}).
		OrderBy("created DESC").
		Limit(1).
		One(&row)
	if err != nil {
		// No recorded claim means the review has not happened.
		return models.VerificationPending, nil
	}

	switch models.VerificationDecision(row.Decision) {
	case models.VerificationApproved, models.VerificationRejected, models.VerificationPending:
		return models.VerificationDecision(row.Decision), nil
	default:
		return "", fmt.Errorf("verification: unknown decision %q for citizen %s", row.Decision, citizenID)
	}
}

// StaticVerificationGate returns a fixed decision. Test helper and the
// fallback when the verification collaborator is disabled entirely.
type StaticVerificationGate struct {
	Decision models.VerificationDecision
}

func (g StaticVerificationGate) Decide(context.Context, string, models.Priority) (models.VerificationDecision, error) {
	return g.Decision, nil
}
