// Package ingest extracts tangent references from exported transcripts and
// appends them to a memory store as units.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"

	"github.com/egobogo/addvar/internal/memory"
)

// Document is one source file handed to the pipeline.
type Document struct {
	Path string
	Data []byte
}

// Source yields documents to scan.
type Source interface {
	Documents(ctx context.Context) iter.Seq2[Document, error]
}

// DirSource walks a file system and yields every supported file.
type DirSource struct {
	FS fs.FS
}

// Documents walks s.FS in lexical order.
func (s DirSource) Documents(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		err := fs.WalkDir(s.FS, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || !Supported(p) {
				return nil
			}
			data, err := fs.ReadFile(s.FS, p)
			if err != nil {
				return err
			}
			if !yield(Document{Path: p, Data: data}, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(Document{}, fmt.Errorf("walk: %w", err))
		}
	}
}

// Draft converts the candidate into a memory draft.
func (c Candidate) Draft() memory.Draft {
	tags := []memory.Tag{{Name: "tangent:" + string(c.Kind), Confidence: 1}}
	if c.ID != "" && c.Kind != KindCall {
		tags = append(tags, memory.Tag{Name: c.ID, Confidence: 1})
	}
	meta := map[string]any{
		"file": c.File,
		"kind": string(c.Kind),
	}
	if c.ID != "" {
		meta["tangent_id"] = c.ID
	}
	if c.Timestamp != "" {
		meta["timestamp"] = c.Timestamp
	}
	return memory.Draft{Content: c.Snippet, Tags: tags, Metadata: meta}
}

// Stats summarizes one pipeline run.
type Stats struct {
	Files      int `json:"files"`
	Candidates int `json:"candidates"`
	Appended   int `json:"appended"`
	Skipped    int `json:"skipped"`
}

// Pipeline scans documents and appends what it finds.
type Pipeline struct {
	store  memory.Store
	logger *slog.Logger
}

// NewPipeline creates a pipeline writing to store. A nil logger uses
// slog.Default.
func NewPipeline(store memory.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, logger: logger}
}

// Run drains src. Candidates repeated verbatim within a run are appended
// once, and candidates with an empty snippet are skipped. Source and store
// errors stop the run and are returned with the stats so far.
func (p *Pipeline) Run(ctx context.Context, src Source) (Stats, error) {
	var st Stats
	seen := make(map[Candidate]struct{})
	for doc, err := range src.Documents(ctx) {
		if err != nil {
			return st, err
		}
		st.Files++
		text, err := Text(doc.Path, doc.Data)
		if err != nil {
			p.logger.Warn("skipping unreadable document", "path", doc.Path, "error", err)
			continue
		}
		for _, c := range Scan(doc.Path, text) {
			st.Candidates++
			if _, dup := seen[c]; dup || c.Snippet == "" {
				st.Skipped++
				continue
			}
			seen[c] = struct{}{}
			if _, err := p.store.Append(ctx, c.Draft()); err != nil {
				return st, fmt.Errorf("append candidate from %s: %w", doc.Path, err)
			}
			st.Appended++
		}
	}
	p.logger.Info("ingest finished", "files", st.Files, "candidates", st.Candidates, "appended", st.Appended)
	return st, nil
}
