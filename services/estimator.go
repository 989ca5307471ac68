package services

import (
	"fmt"

	"queue-system/internal/status"
)

// Estimate returns the baseline wait in minutes for a token with
// positionAhead tokens in front of it: positionAhead * avgHandleMin.
// Real-time handle-time telemetry is the forecasting collaborator's
// refinement; this linear estimate is what tokens are priced with at
// creation.
func Estimate(avgHandleMin, positionAhead int) (int, error) {
	if avgHandleMin <= 0 {
		return 0, fmt.Errorf("%w: avg handle time %d min", status.ErrInvalidConfiguration, avgHandleMin)
	}
	if positionAhead <= 0 {
		return 0, nil
	}
	return positionAhead * avgHandleMin, nil
}
