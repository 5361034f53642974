// Package memory is an in-process storage backend. It keeps everything in
// maps guarded by a mutex and is meant for tests and single-node demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"adaptiveclean/internal/storage"
)

// Kind is the registry name of this backend.
const Kind = "memory"

func init() {
	storage.Register(Kind, func(context.Context, storage.Config) (storage.Repository, error) {
		return New(), nil
	})
}

type variantKey struct {
	source    string
	algorithm string
}

// Repo implements storage.Repository in memory.
type Repo struct {
	mu        sync.RWMutex
	datasets  map[string]storage.DatasetRecord
	variants  map[string]storage.Variant
	byKey     map[variantKey]string
	scores    []storage.ScoreRecord
	nextScore int64
}

// New returns an empty repository.
func New() *Repo {
	return &Repo{
		datasets: map[string]storage.DatasetRecord{},
		variants: map[string]storage.Variant{},
		byKey:    map[variantKey]string{},
	}
}

// EnsureSchema is a no-op.
func (r *Repo) EnsureSchema(context.Context) error { return nil }

// Close is a no-op.
func (r *Repo) Close() error { return nil }

// SaveDataset stores rec, assigning an id when it has none.
func (r *Repo) SaveDataset(ctx context.Context, rec *storage.DatasetRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = storage.NewID()
	}
	cp := *rec
	if cp.Data != nil {
		cp.Data = cp.Data.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[rec.ID] = cp
	return nil
}

// GetDataset implements storage.DatasetProvider.
func (r *Repo) GetDataset(ctx context.Context, id string, scope storage.Scope) (*storage.DatasetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rec, ok := r.datasets[id]
	r.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !scope.CanRead(rec.Scope) {
		return nil, storage.ErrAccessDenied
	}
	if rec.Data != nil {
		rec.Data = rec.Data.Clone()
	}
	return &rec, nil
}

// RecentScores implements storage.HistoryReader.
func (r *Repo) RecentScores(ctx context.Context, n int) ([]storage.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]storage.ScoreRecord, len(r.scores))
	copy(out, r.scores)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// SaveVariants implements storage.VariantWriter. The new state is built
// aside and swapped in under the lock, so a cancelled context leaves the
// repository untouched.
func (r *Repo) SaveVariants(ctx context.Context, sourceID string, variants []storage.Variant) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, len(variants))
	replaced := map[string]bool{}
	staged := make([]storage.Variant, len(variants))
	for i, v := range variants {
		key := variantKey{source: sourceID, algorithm: v.AlgorithmName}
		id, ok := r.byKey[key]
		if !ok {
			id = storage.NewID()
		}
		ids[i] = id
		replaced[id] = true

		v.ID = id
		v.SourceDatasetID = sourceID
		if v.Data != nil {
			v.Data = v.Data.Clone()
		}
		v.Scores = nil
		staged[i] = v
	}

	kept := r.scores[:0:0]
	for _, s := range r.scores {
		if !replaced[s.VariantID] {
			kept = append(kept, s)
		}
	}
	for i, v := range variants {
		for _, s := range v.Scores {
			r.nextScore++
			s.ID = r.nextScore
			s.VariantID = ids[i]
			kept = append(kept, s)
		}
	}

	r.scores = kept
	for i, v := range staged {
		r.variants[v.ID] = v
		r.byKey[variantKey{source: sourceID, algorithm: v.AlgorithmName}] = ids[i]
	}
	return ids, nil
}

// ListVariants returns the variants of a source dataset ordered by
// algorithm name, each with its score records.
func (r *Repo) ListVariants(ctx context.Context, sourceID string) ([]storage.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []storage.Variant
	for _, v := range r.variants {
		if v.SourceDatasetID != sourceID {
			continue
		}
		for _, s := range r.scores {
			if s.VariantID == v.ID {
				v.Scores = append(v.Scores, s)
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlgorithmName < out[j].AlgorithmName })
	return out, nil
}
