package board

import (
	"testing"
	"time"
)

func TestSnapshot(t *testing.T) {
	at := time.Date(2025, 10, 16, 18, 25, 0, 0, time.FixedZone("X", 3600))
	snap := Snapshot([]Card{
		{ID: "c1", ListID: "todo", LastActivity: at},
		{ID: "c2", ListID: "done"},
	})
	if snap["c1"] != "2025-10-16T17:25:00Z/todo" {
		t.Errorf("c1 = %s", snap["c1"])
	}
	if len(snap) != 2 {
		t.Errorf("len = %d", len(snap))
	}
}
