package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/egobogo/addvar/internal/storage"
)

// Snapshot maps identifiers to a fingerprint of their state.
type Snapshot map[string]string

// Diff reports identifiers added, removed and changed between prev and
// cur. Each list is sorted.
func Diff(prev, cur Snapshot) DeltaSet {
	d := DeltaSet{Added: []string{}, Removed: []string{}, Changed: []string{}}
	for id, fp := range cur {
		old, ok := prev[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case old != fp:
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range prev {
		if _, ok := cur[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

// DirSnapshot fingerprints every regular file in fsys with xxhash, keyed by
// slash-separated path.
func DirSnapshot(fsys fs.FS) (Snapshot, error) {
	snap := Snapshot{}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		snap[path] = strconv.FormatUint(xxhash.Sum64(data), 16)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: snapshot: %w", err)
	}
	return snap, nil
}

// LoadSnapshot reads a snapshot saved by SaveSnapshot. A missing file
// yields an empty snapshot.
func LoadSnapshot(ctx context.Context, store storage.FileStore, path string) (Snapshot, error) {
	data, err := store.Get(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	snap := Snapshot{}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("reconcile: parse snapshot %s: %w", path, err)
	}
	return snap, nil
}

// SaveSnapshot overwrites path with snap.
func SaveSnapshot(ctx context.Context, store storage.FileStore, path string, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return store.Put(ctx, path, data)
}
