package trelloClient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeTrello(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boards/b1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "b1", "name": "Tangents"})
	})
	mux.HandleFunc("GET /boards/b1/cards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "c1", "name": "Tangent_1", "idList": "todo", "shortUrl": "https://trello.com/c/1", "dateLastActivity": "2025-10-16T18:25:00.000Z"},
			{"id": "c2", "name": "Tangent_2", "idList": "done"},
		})
	})
	return httptest.NewServer(mux)
}

func TestCards(t *testing.T) {
	srv := newFakeTrello(t)
	defer srv.Close()

	tc := NewTrelloClient("key", "token", "b1")
	tc.Client.BaseURL = srv.URL

	cards, err := tc.Cards(context.Background())
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("got %d cards", len(cards))
	}
	if cards[0].ID != "c1" || cards[0].ListID != "todo" || cards[0].LastActivity.IsZero() {
		t.Errorf("card 0 = %+v", cards[0])
	}
	if !cards[1].LastActivity.IsZero() {
		t.Errorf("card 1 should have no activity time: %+v", cards[1])
	}
}

func TestCardsBoardMissing(t *testing.T) {
	srv := newFakeTrello(t)
	defer srv.Close()

	tc := NewTrelloClient("key", "token", "nope")
	tc.Client.BaseURL = srv.URL
	if _, err := tc.Cards(context.Background()); err == nil {
		t.Error("expected error for unknown board")
	}
}
