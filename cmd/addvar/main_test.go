package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/egobogo/addvar/internal/config"
	"github.com/egobogo/addvar/internal/ingest"
	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/reconcile"
	"github.com/egobogo/addvar/internal/server"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runErr(args...)
	if err != nil {
		t.Fatalf("addvar %v: %v", args, err)
	}
	return out
}

func runErr(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) (cfgPath, exports, outDir string) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ADDVAR_CONFIG", "")
	root := t.TempDir()
	exports = filepath.Join(root, "exports")
	outDir = filepath.Join(root, "out")
	cfgPath = filepath.Join(root, "addvar.yaml")
	writeFile(t, cfgPath, `
log:
  level: warn
memory:
  backend: badger
  dir: `+filepath.Join(root, "db")+`
embedding:
  local:
    kind: hashing
    dim: 256
index:
  backend: brute
reconcile:
  local_dir: `+outDir+`
`)
	writeFile(t, filepath.Join(exports, "a.md"), "Tangent_alpha was committed at 20250101T1200\n")
	writeFile(t, filepath.Join(exports, "b.txt"), "tangent.scan of the beta notes")
	return cfgPath, exports, outDir
}

func TestIngestQueryReconcileLedger(t *testing.T) {
	cfgPath, exports, outDir := setup(t)

	var stats ingest.Stats
	if err := json.Unmarshal([]byte(run(t, "--config", cfgPath, "ingest", exports)), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Files != 2 || stats.Appended != 2 {
		t.Fatalf("ingest stats = %+v", stats)
	}

	var resp server.MapResponse
	if err := json.Unmarshal([]byte(run(t, "--config", cfgPath, "query", "-k", "1", "Tangent_alpha", "committed")), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Strategy != server.StrategySemantic || len(resp.Results) != 1 || !strings.Contains(resp.Results[0].Content, "Tangent_alpha") {
		t.Errorf("query = %+v", resp)
	}

	var first reconcileReport
	if err := yaml.Unmarshal([]byte(run(t, "--config", cfgPath, "reconcile", "--dir", exports, "--query", "Tangent_alpha", "-k", "2")), &first); err != nil {
		t.Fatal(err)
	}
	if len(first.Summary.TopIDs) != 2 || first.Summary.Counts.Added != 2 || first.PersistError != "" {
		t.Errorf("first reconcile = %+v", first)
	}
	if _, err := os.Stat(filepath.Join(outDir, "reconciliation_result.yaml")); err != nil {
		t.Errorf("artifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "reconciliation_result.dir-snapshot.yaml")); err != nil {
		t.Errorf("snapshot: %v", err)
	}

	writeFile(t, filepath.Join(exports, "b.txt"), "tangent.scan of the revised beta notes")
	var second reconcileReport
	if err := yaml.Unmarshal([]byte(run(t, "--config", cfgPath, "reconcile", "--dir", exports)), &second); err != nil {
		t.Fatal(err)
	}
	want := reconcile.Counts{Changed: 1}
	if second.Summary.Counts != want || len(second.Deltas.Changed) != 1 || second.Deltas.Changed[0] != "b.txt" {
		t.Errorf("second reconcile = %+v", second)
	}

	merges := 0
	sc := bufio.NewScanner(strings.NewReader(run(t, "--config", cfgPath, "ledger", "--action", "merge")))
	for sc.Scan() {
		var e memory.LedgerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatal(err)
		}
		if e.Action != memory.ActionMerge {
			t.Errorf("filtered ledger returned %s", e.Action)
		}
		merges++
	}
	if merges != 2 {
		t.Errorf("got %d merge entries, want 2", merges)
	}
}

func TestRejectedMergeKeepsSnapshot(t *testing.T) {
	cfgPath, exports, outDir := setup(t)
	snapshot := filepath.Join(outDir, "reconciliation_result.dir-snapshot.yaml")

	bad := filepath.Join(t.TempDir(), "coherence.yaml")
	writeFile(t, bad, "- score: 1\n")
	if _, err := runErr("--config", cfgPath, "reconcile", "--dir", exports, "--coherence", bad); err == nil {
		t.Fatal("expected error for a coherence item without id")
	}
	if _, err := os.Stat(snapshot); !os.IsNotExist(err) {
		t.Errorf("snapshot written by a rejected merge: %v", err)
	}

	malformed := filepath.Join(t.TempDir(), "coherence.yaml")
	writeFile(t, malformed, "[unclosed\n")
	if _, err := runErr("--config", cfgPath, "reconcile", "--dir", exports, "--coherence", malformed); err == nil {
		t.Fatal("expected error for malformed coherence file")
	}

	var report reconcileReport
	if err := yaml.Unmarshal([]byte(run(t, "--config", cfgPath, "reconcile", "--dir", exports)), &report); err != nil {
		t.Fatal(err)
	}
	if report.Summary.Counts.Added != 2 || len(report.Deltas.Added) != 2 {
		t.Errorf("deltas after rejected runs = %+v", report.Deltas)
	}
	if _, err := os.Stat(snapshot); err != nil {
		t.Errorf("snapshot after accepted merge: %v", err)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	t.Setenv("ADDVAR_CONFIG", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "ledger"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg config.LogConfig
		ok  bool
	}{
		{config.LogConfig{}, true},
		{config.LogConfig{Level: "debug", Format: "json"}, true},
		{config.LogConfig{Level: "WARN", Format: "Text"}, true},
		{config.LogConfig{Level: "loud"}, false},
		{config.LogConfig{Format: "xml"}, false},
	}
	for _, tt := range tests {
		_, err := newLogger(tt.cfg, io.Discard)
		if (err == nil) != tt.ok {
			t.Errorf("newLogger(%+v) err = %v", tt.cfg, err)
		}
	}
}

func TestSnapshotPath(t *testing.T) {
	if got := snapshotPath("out/result.yaml", "trello"); got != "out/result.trello-snapshot.yaml" {
		t.Errorf("snapshotPath = %s", got)
	}
}
