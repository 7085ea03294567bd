package gitsource_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/egobogo/addvar/internal/ingest"
	"github.com/egobogo/addvar/internal/ingest/gitsource"
	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/memory/inmemory"
)

// initRepo creates a repository with one commit holding files, then leaves
// an uncommitted edit in the worktree.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("Add %s: %v", name, err)
		}
	}
	_, err = wt.Commit("exports", &git.CommitOptions{
		Author: &object.Signature{Name: "addvar", Email: "addvar@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "late.md"), []byte("Tangent_late"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestDocumentsFromHead(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t, map[string]string{
		"chats/one.md": "Tangent_one here",
		"main.go":      "package main // Tangent_code",
	})
	src, err := gitsource.NewGitSource(ctx, "", dir, nil)
	if err != nil {
		t.Fatalf("NewGitSource: %v", err)
	}

	var paths []string
	for doc, err := range src.Documents(ctx) {
		if err != nil {
			t.Fatalf("Documents: %v", err)
		}
		paths = append(paths, doc.Path)
	}
	if len(paths) != 1 || paths[0] != "chats/one.md" {
		t.Errorf("paths = %v", paths)
	}

	store := inmemory.New()
	st, err := ingest.NewPipeline(store, nil).Run(ctx, src)
	if err != nil || st.Appended != 1 {
		t.Fatalf("Run = %+v, %v", st, err)
	}
	units, _ := memory.Collect(store.List(ctx))
	if units[0].Metadata["tangent_id"] != "Tangent_one" {
		t.Errorf("unit = %+v", units[0])
	}
}

func TestMissingRepoWithoutURL(t *testing.T) {
	_, err := gitsource.NewGitSource(context.Background(), "", filepath.Join(t.TempDir(), "absent"), nil)
	if err == nil {
		t.Error("expected error for missing repository without url")
	}
}

func TestCloneFromLocalPath(t *testing.T) {
	ctx := context.Background()
	origin := initRepo(t, map[string]string{"a.txt": "tangent.index"})
	src, err := gitsource.NewGitSource(ctx, origin, filepath.Join(t.TempDir(), "clone"), nil)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	n := 0
	for _, err := range src.Documents(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 1 {
		t.Errorf("got %d documents from clone", n)
	}
}
