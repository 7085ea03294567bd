package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/egobogo/addvar/internal/board"
	trelloClient "github.com/egobogo/addvar/internal/board/trello"
	"github.com/egobogo/addvar/internal/config"
	"github.com/egobogo/addvar/internal/reconcile"
	"github.com/egobogo/addvar/internal/server"
	"github.com/egobogo/addvar/internal/storage"
)

type reconcileFlags struct {
	dir        string
	trello     bool
	coherence  string
	query      string
	topK       int
	noSnapshot bool
}

// reconcileReport is what the command prints.
type reconcileReport struct {
	Summary      reconcile.Summary  `yaml:"summary"`
	Deltas       reconcile.DeltaSet `yaml:"deltas"`
	Artifact     string             `yaml:"artifact"`
	PersistError string             `yaml:"persist_error,omitempty"`
	LedgerError  string             `yaml:"ledger_error,omitempty"`
}

func newReconcileCmd(o *rootOptions) *cobra.Command {
	var f reconcileFlags
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge a ranked result with observed changes into the reconciliation artifact",
		Long: "Computes deltas by fingerprinting a directory (--dir) or a Trello board\n" +
			"(--trello) and diffing against the snapshot saved by the previous run. The\n" +
			"coherence vector is read from a YAML or JSON file (--coherence) or produced\n" +
			"by ranking the store against --query.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := newService(o.cfg, o.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			obs, err := observeDeltas(ctx, o.cfg, svc.sink, f)
			if err != nil {
				return err
			}
			cv, err := coherenceVector(ctx, o, svc, f)
			if err != nil {
				return err
			}

			out, err := svc.api.Reconcile(ctx, cv, obs.deltas)
			if err != nil {
				return err
			}
			report := reconcileReport{Summary: out.Summary, Deltas: obs.deltas, Artifact: svc.api.ArtifactPath()}
			if out.NoteErr != nil {
				report.LedgerError = out.NoteErr.Error()
			}
			// The snapshot only advances once the deltas it consumes are in a
			// persisted artifact.
			if out.PersistErr != nil {
				report.PersistError = out.PersistErr.Error()
			} else if !f.noSnapshot {
				if err := obs.save(ctx, svc.sink); err != nil {
					return err
				}
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory to fingerprint for deltas")
	cmd.Flags().BoolVar(&f.trello, "trello", false, "fingerprint the configured Trello board for deltas")
	cmd.Flags().StringVar(&f.coherence, "coherence", "", "YAML or JSON file holding the coherence vector")
	cmd.Flags().StringVar(&f.query, "query", "", "rank the store against this text to form the coherence vector")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", server.DefaultTopK, "coherence vector length for --query")
	cmd.Flags().BoolVar(&f.noSnapshot, "no-snapshot", false, "diff against the saved snapshot without replacing it")
	cmd.MarkFlagsMutuallyExclusive("dir", "trello")
	cmd.MarkFlagsMutuallyExclusive("coherence", "query")
	return cmd
}

// snapshotPath places a source's snapshot next to the artifact, e.g.
// reconciliation_result.trello-snapshot.yaml.
func snapshotPath(artifact, source string) string {
	base := strings.TrimSuffix(artifact, path.Ext(artifact))
	return base + "." + source + "-snapshot.yaml"
}

// observation is a diff against the saved snapshot of one source. The
// current snapshot is held back until save is called.
type observation struct {
	deltas reconcile.DeltaSet
	source string
	path   string
	cur    reconcile.Snapshot
}

// save replaces the stored snapshot with the observed one. It is a no-op
// when no source was selected.
func (o observation) save(ctx context.Context, sink storage.FileStore) error {
	if o.source == "" {
		return nil
	}
	if err := reconcile.SaveSnapshot(ctx, sink, o.path, o.cur); err != nil {
		return fmt.Errorf("save %s snapshot: %w", o.source, err)
	}
	return nil
}

// observeDeltas returns empty deltas when no source is selected. It does
// not write anything.
func observeDeltas(ctx context.Context, cfg *config.Config, sink storage.FileStore, f reconcileFlags) (observation, error) {
	var (
		cur    reconcile.Snapshot
		source string
		err    error
	)
	switch {
	case f.dir != "":
		source = "dir"
		cur, err = reconcile.DirSnapshot(os.DirFS(f.dir))
	case f.trello:
		source = "trello"
		t := cfg.Trello
		if t.APIKey == "" || t.Token == "" || t.BoardID == "" {
			return observation{}, errors.New("--trello needs trello.api_key, trello.token and trello.board_id")
		}
		var cards []board.Card
		cards, err = trelloClient.NewTrelloClient(t.APIKey, t.Token, t.BoardID).Cards(ctx)
		cur = reconcile.Snapshot(board.Snapshot(cards))
	default:
		return observation{deltas: reconcile.DeltaSet{Added: []string{}, Removed: []string{}, Changed: []string{}}}, nil
	}
	if err != nil {
		return observation{}, err
	}

	p := snapshotPath(cfg.Reconcile.Path, source)
	prev, err := reconcile.LoadSnapshot(ctx, sink, p)
	if err != nil {
		return observation{}, err
	}
	return observation{deltas: reconcile.Diff(prev, cur), source: source, path: p, cur: cur}, nil
}

func coherenceVector(ctx context.Context, o *rootOptions, svc *service, f reconcileFlags) (reconcile.CoherenceVector, error) {
	switch {
	case f.coherence != "":
		data, err := os.ReadFile(f.coherence)
		if err != nil {
			return nil, err
		}
		var cv reconcile.CoherenceVector
		if err := yaml.Unmarshal(data, &cv); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.coherence, err)
		}
		return cv, nil
	case f.query != "":
		resp, err := rankQuery(ctx, o.logger, svc, f.query, f.topK)
		if err != nil {
			return nil, err
		}
		cv := make(reconcile.CoherenceVector, len(resp.Results))
		for i, r := range resp.Results {
			cv[i] = map[string]any{"id": r.ID, "score": r.Score, "strategy": resp.Strategy}
		}
		return cv, nil
	default:
		return reconcile.CoherenceVector{}, nil
	}
}
