package services

import (
	"sort"

	"queue-system/models"
)

// Rank returns the waiting tokens in serving order: priority rank first,
// then join time, then token id. The id tie-break makes the order a total
// one, so repeated calls over the same set always agree regardless of the
// iteration order the store handed us.
func Rank(tokens []models.Token) []models.Token {
	ranked := make([]models.Token, len(tokens))
	copy(ranked, tokens)

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})

	return ranked
}

// PositionIn returns the 1-based rank of tokenID within the ordered set,
// or 0 when the token is not in it.
func PositionIn(ranked []models.Token, tokenID string) int {
	for i, t := range ranked {
		if t.ID == tokenID {
			return i + 1
		}
	}
	return 0
}
