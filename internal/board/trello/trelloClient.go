// internal/board/trello/trelloClient.go
package trelloClient

import (
	"context"
	"fmt"

	"github.com/adlio/trello"

	bc "github.com/egobogo/addvar/internal/board"
)

// TrelloClient implements bc.Source for a single Trello board using the
// adlio/trello library.
type TrelloClient struct {
	Client  *trello.Client
	BoardID string
}

var _ bc.Source = (*TrelloClient)(nil)

// NewTrelloClient constructs a new TrelloClient.
func NewTrelloClient(apiKey, token, boardID string) *TrelloClient {
	return &TrelloClient{
		Client:  trello.NewClient(apiKey, token),
		BoardID: boardID,
	}
}

// Cards returns every open card on the board.
func (tc *TrelloClient) Cards(ctx context.Context) ([]bc.Card, error) {
	client := tc.Client.WithContext(ctx)
	b, err := client.GetBoard(tc.BoardID, trello.Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	cards, err := b.GetCards(trello.Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	result := make([]bc.Card, 0, len(cards))
	for _, c := range cards {
		card := bc.Card{
			ID:     c.ID,
			Name:   c.Name,
			ListID: c.IDList,
			URL:    c.ShortURL,
		}
		if c.DateLastActivity != nil {
			card.LastActivity = *c.DateLastActivity
		}
		result = append(result, card)
	}
	return result, nil
}
