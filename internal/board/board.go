package board

import (
	"context"
	"time"
)

// Card is the part of a board card that matters for change detection.
type Card struct {
	ID           string
	Name         string
	ListID       string
	URL          string
	LastActivity time.Time
}

// Source lists the cards currently on a board.
type Source interface {
	Cards(ctx context.Context) ([]Card, error)
}

// Snapshot fingerprints cards by last activity and list, so moving or
// editing a card marks it changed.
func Snapshot(cards []Card) map[string]string {
	snap := make(map[string]string, len(cards))
	for _, c := range cards {
		snap[c.ID] = c.LastActivity.UTC().Format(time.RFC3339) + "/" + c.ListID
	}
	return snap
}
