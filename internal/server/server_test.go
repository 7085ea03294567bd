package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/embedding/hashing"
	"github.com/egobogo/addvar/internal/index"
	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/memory/inmemory"
	"github.com/egobogo/addvar/internal/reconcile"
	"github.com/egobogo/addvar/internal/server"
	"github.com/egobogo/addvar/internal/storage"
)

type fixture struct {
	srv   *httptest.Server
	store *inmemory.InMemoryStore
	dir   string
}

func newFixture(t *testing.T, provider embedding.Provider, rstore storage.FileStore) *fixture {
	t.Helper()
	dir := t.TempDir()
	if rstore == nil {
		local, err := storage.NewLocal(dir)
		if err != nil {
			t.Fatal(err)
		}
		rstore = local
	}
	store := inmemory.New()
	s := server.New(server.Options{
		Store:        store,
		Index:        index.New(),
		Provider:     provider,
		Reconciler:   reconcile.New(rstore, "result.yaml"),
		AuditRecalls: true,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: ts, store: store, dir: dir}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (f *fixture) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) seed(t *testing.T, contents ...string) []memory.Unit {
	t.Helper()
	var out []memory.Unit
	for _, c := range contents {
		var u memory.Unit
		if code := f.do(t, "POST", "/v1/units", map[string]any{"content": c}, &u); code != http.StatusCreated {
			t.Fatalf("create %q: status %d", c, code)
		}
		out = append(out, u)
	}
	return out
}

type mapResponse struct {
	Strategy string `json:"strategy"`
	Results  []struct {
		ID       string   `json:"id"`
		Score    float64  `json:"score"`
		Distance *float64 `json:"distance"`
	} `json:"results"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	var body map[string]string
	if code := f.do(t, "GET", "/health", nil, &body); code != 200 || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
}

func TestUnitLifecycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	units := f.seed(t, "tangent commit alpha", "tangent scan beta")

	if code := f.do(t, "POST", "/v1/units", map[string]any{"content": ""}, nil); code != http.StatusBadRequest {
		t.Errorf("empty content status = %d", code)
	}

	var got memory.Unit
	if code := f.do(t, "GET", "/v1/units/"+units[0].ID, nil, &got); code != 200 || got.Content != "tangent commit alpha" {
		t.Errorf("get = %d %+v", code, got)
	}
	if code := f.do(t, "GET", "/v1/units/missing", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing unit status = %d", code)
	}

	patch := map[string]any{"tags": []memory.Tag{{Name: "reviewed", Confidence: 0.9}}}
	if code := f.do(t, "PATCH", "/v1/units/"+units[1].ID, patch, &got); code != 200 || len(got.Tags) != 1 || got.Content != "tangent scan beta" {
		t.Errorf("patch = %d %+v", code, got)
	}
	if code := f.do(t, "PATCH", "/v1/units/missing", patch, nil); code != http.StatusNotFound {
		t.Errorf("patch missing status = %d", code)
	}

	var list struct {
		Units []memory.Unit `json:"units"`
		Count int           `json:"count"`
	}
	f.do(t, "GET", "/v1/units", nil, &list)
	if list.Count != 2 || list.Units[0].ID != units[0].ID {
		t.Errorf("list = %+v", list)
	}

	var ledger struct {
		Entries []memory.LedgerEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	f.do(t, "GET", "/v1/ledger", nil, &ledger)
	want := []memory.Action{memory.ActionStore, memory.ActionStore, memory.ActionRecall, memory.ActionUpdate}
	if ledger.Count != len(want) {
		t.Fatalf("ledger = %+v", ledger.Entries)
	}
	for i, a := range want {
		if ledger.Entries[i].Action != a {
			t.Errorf("entry %d action = %s, want %s", i, ledger.Entries[i].Action, a)
		}
	}
}

func TestMapKeywordFallback(t *testing.T) {
	f := newFixture(t, nil, nil)
	units := f.seed(t, "unrelated words", "tangent commit alpha", "tangent scan beta")

	var resp mapResponse
	if code := f.do(t, "POST", "/v1/map", map[string]any{"query": "Tangent commit"}, &resp); code != 200 {
		t.Fatalf("map status %d", code)
	}
	if resp.Strategy != server.StrategyKeyword {
		t.Errorf("strategy = %s", resp.Strategy)
	}
	order := []string{units[1].ID, units[2].ID, units[0].ID}
	if len(resp.Results) != len(order) {
		t.Fatalf("results = %+v", resp.Results)
	}
	for i, id := range order {
		if resp.Results[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, resp.Results[i].ID, id)
		}
	}
	if resp.Results[0].Score != 2 || resp.Results[0].Distance != nil {
		t.Errorf("top keyword result = %+v", resp.Results[0])
	}

	if code := f.do(t, "POST", "/v1/map", map[string]any{"query": "tangent", "top_k": 1}, &resp); code != 200 || len(resp.Results) != 1 {
		t.Errorf("top_k=1 returned %d results", len(resp.Results))
	}
	if code := f.do(t, "POST", "/v1/map", map[string]any{"query": ""}, nil); code != http.StatusBadRequest {
		t.Errorf("empty query status = %d", code)
	}
}

func TestBuildAndSemanticMap(t *testing.T) {
	f := newFixture(t, hashing.New(64), nil)
	units := f.seed(t, "unrelated words", "tangent commit alpha", "tangent scan beta")

	var built struct {
		Status string      `json:"status"`
		Stats  index.Stats `json:"stats"`
	}
	if code := f.do(t, "POST", "/v1/index/build", nil, &built); code != 200 {
		t.Fatalf("build status %d", code)
	}
	if !built.Stats.Built || built.Stats.Len != 3 || built.Stats.Provider != "hashing/64" {
		t.Errorf("stats = %+v", built.Stats)
	}

	var stats index.Stats
	f.do(t, "GET", "/v1/index", nil, &stats)
	if stats.Len != 3 {
		t.Errorf("GET /v1/index = %+v", stats)
	}

	var resp mapResponse
	f.do(t, "POST", "/v1/map", map[string]any{"query": "tangent commit alpha", "top_k": 2}, &resp)
	if resp.Strategy != server.StrategySemantic || len(resp.Results) != 2 {
		t.Fatalf("map = %+v", resp)
	}
	if resp.Results[0].ID != units[1].ID || resp.Results[0].Distance == nil || *resp.Results[0].Distance > 1e-6 {
		t.Errorf("top semantic result = %+v", resp.Results[0])
	}
}

func TestBuildWithoutProvider(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.seed(t, "anything")
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if code := f.do(t, "POST", "/v1/index/build", nil, &body); code != http.StatusServiceUnavailable || body.Error.Type != "provider_unavailable" {
		t.Errorf("build without provider = %d %+v", code, body)
	}
}

type reconcileResponse struct {
	Summary      reconcile.Summary `json:"summary"`
	PersistError string            `json:"persist_error"`
	LedgerError  string            `json:"ledger_error"`
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := map[string]any{
		"coherence_vector": []map[string]any{{"id": "x", "score": 0.9}, {"id": "y"}},
		"deltas":           map[string]any{"added": []string{"z"}, "removed": []string{}, "changed": []string{}},
	}
	var resp reconcileResponse
	if code := f.do(t, "POST", "/v1/reconcile", req, &resp); code != 200 {
		t.Fatalf("reconcile status %d", code)
	}
	want := reconcile.Counts{Top: 2, Added: 1}
	if resp.Summary.Counts != want || len(resp.Summary.TopIDs) != 2 || resp.Summary.TopIDs[0] != "x" {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if resp.PersistError != "" {
		t.Errorf("persist_error = %s", resp.PersistError)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "result.yaml")); err != nil {
		t.Errorf("artifact not written: %v", err)
	}

	entries, _ := memory.Collect(f.store.Ledger(context.Background()))
	if len(entries) != 2 || entries[0].Action != memory.ActionMerge || entries[1].NodeID != "y" {
		t.Errorf("merge notes = %+v", entries)
	}

	bad := map[string]any{"coherence_vector": []map[string]any{{"score": 1}}}
	if code := f.do(t, "POST", "/v1/reconcile", bad, nil); code != http.StatusBadRequest {
		t.Errorf("missing id status = %d", code)
	}
}

type brokenStore struct{}

func (brokenStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }
func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, os.ErrNotExist
}

func TestReconcilePersistFailure(t *testing.T) {
	f := newFixture(t, nil, brokenStore{})
	req := map[string]any{"coherence_vector": []map[string]any{{"id": "x"}}}
	var resp reconcileResponse
	if code := f.do(t, "POST", "/v1/reconcile", req, &resp); code != 200 {
		t.Fatalf("status %d", code)
	}
	if resp.PersistError == "" || len(resp.Summary.TopIDs) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

// flakyLedger fails Note for one node id.
type flakyLedger struct {
	memory.Store
	failID string
}

func (f flakyLedger) Note(ctx context.Context, action memory.Action, nodeID string, meta map[string]any) (memory.LedgerEntry, error) {
	if nodeID == f.failID {
		return memory.LedgerEntry{}, errors.New("ledger offline")
	}
	return f.Store.Note(ctx, action, nodeID, meta)
}

func TestReconcileLedgerFailureKeepsOutcome(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	store := inmemory.New()
	s := server.New(server.Options{
		Store:      flakyLedger{Store: store, failID: "x"},
		Reconciler: reconcile.New(local, "result.yaml"),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	f := &fixture{srv: ts, store: store, dir: dir}

	req := map[string]any{"coherence_vector": []map[string]any{{"id": "x"}, {"id": "y"}}}
	var resp reconcileResponse
	if code := f.do(t, "POST", "/v1/reconcile", req, &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if resp.LedgerError == "" || resp.PersistError != "" || len(resp.Summary.TopIDs) != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if _, err := os.Stat(filepath.Join(dir, "result.yaml")); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
	entries, _ := memory.Collect(store.Ledger(context.Background()))
	if len(entries) != 1 || entries[0].NodeID != "y" {
		t.Errorf("ledger = %+v, want the entry for y", entries)
	}

	out, err := s.Reconcile(context.Background(), reconcile.CoherenceVector{{"id": "x"}}, reconcile.DeltaSet{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if out.NoteErr == nil || out.PersistErr != nil {
		t.Errorf("outcome = %+v", out)
	}
}
