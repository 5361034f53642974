// Package storagetest holds the behaviour every storage backend must share.
// Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/storage"
)

// Sample is a small dataset with a null, text and a timestamp column.
func Sample(t *testing.T) *dataset.Dataset {
	t.Helper()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d, err := dataset.FromColumns(
		[]string{"id", "name", "score", "seen"},
		[][]dataset.Value{
			{dataset.Number(1), dataset.Number(2), dataset.Number(3)},
			{dataset.Text("ada"), dataset.Text("bob"), dataset.Null()},
			{dataset.Number(0.5), dataset.Null(), dataset.Number(2.25)},
			{dataset.Timestamp(ts), dataset.Timestamp(ts.Add(time.Hour)), dataset.Null()},
		},
	)
	require.NoError(t, err)
	return d
}

// Run exercises repo against the storage contracts. repo must be empty.
func Run(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "EnsureSchema is idempotent")

	t.Run("dataset round trip", func(t *testing.T) {
		rec := &storage.DatasetRecord{Name: "people.csv", Checksum: "abc", Data: Sample(t), CreatedAt: time.Now().UTC()}
		require.NoError(t, repo.SaveDataset(ctx, rec))
		require.NotEmpty(t, rec.ID)

		got, err := repo.GetDataset(ctx, rec.ID, storage.Scope{})
		require.NoError(t, err)
		assert.Equal(t, "people.csv", got.Name)
		assert.Equal(t, "abc", got.Checksum)
		assert.Equal(t, rec.Data.Schema(), got.Data.Schema())
		require.Equal(t, 3, got.Data.Len())
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				assert.True(t, rec.Data.Cell(i, j).Equal(got.Data.Cell(i, j)), "cell %d,%d", i, j)
			}
		}
	})

	t.Run("missing and scoped datasets", func(t *testing.T) {
		_, err := repo.GetDataset(ctx, "does-not-exist", storage.Scope{Admin: true})
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

		rec := &storage.DatasetRecord{Name: "private", Scope: "alice", Data: Sample(t), CreatedAt: time.Now().UTC()}
		require.NoError(t, repo.SaveDataset(ctx, rec))

		_, err = repo.GetDataset(ctx, rec.ID, storage.Scope{Owner: "bob"})
		assert.True(t, errors.Is(err, storage.ErrAccessDenied), "got %v", err)

		_, err = repo.GetDataset(ctx, rec.ID, storage.Scope{Owner: "alice"})
		assert.NoError(t, err)
		_, err = repo.GetDataset(ctx, rec.ID, storage.Scope{Admin: true})
		assert.NoError(t, err)
	})

	t.Run("variants upsert and history", func(t *testing.T) {
		src := &storage.DatasetRecord{Name: "src", Data: Sample(t), CreatedAt: time.Now().UTC()}
		require.NoError(t, repo.SaveDataset(ctx, src))

		t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		first := []storage.Variant{
			variant("duplicates", "all", Sample(t), 0.8, t0, "duplicate_removal"),
			variant("duplicates__tech", "tech", Sample(t), 0.9, t0, "duplicate_removal"),
		}
		ids, err := repo.SaveVariants(ctx, src.ID, first)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.NotEqual(t, ids[0], ids[1])

		t1 := t0.Add(time.Hour)
		second := []storage.Variant{
			variant("duplicates", "all", Sample(t), 0.7, t1, "duplicate_removal"),
		}
		again, err := repo.SaveVariants(ctx, src.ID, second)
		require.NoError(t, err)
		assert.Equal(t, ids[0], again[0], "same source and algorithm keeps its id")

		list, err := repo.ListVariants(ctx, src.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "duplicates", list[0].AlgorithmName)
		assert.InDelta(t, 0.7, list[0].QualityScore, 1e-9)
		require.Len(t, list[0].Scores, 1, "score records are replaced")
		assert.InDelta(t, 0.7, list[0].Scores[0].Score, 1e-9)
		assert.Equal(t, 3, list[0].RowCount)
		assert.Equal(t, 4, list[0].ColumnCount)

		recent, err := repo.RecentScores(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.InDelta(t, 0.7, recent[0].Score, 1e-9, "newest first")
		assert.Equal(t, ids[0], recent[0].VariantID)
		assert.InDelta(t, 0.9, recent[1].Score, 1e-9)
		assert.Equal(t, "duplicate_removal", recent[0].AlgorithmName)

		limited, err := repo.RecentScores(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("cancelled save writes nothing", func(t *testing.T) {
		src := &storage.DatasetRecord{Name: "cancel", Data: Sample(t), CreatedAt: time.Now().UTC()}
		require.NoError(t, repo.SaveDataset(ctx, src))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.SaveVariants(cctx, src.ID, []storage.Variant{
			variant("outliers", "all", Sample(t), 1, time.Now().UTC(), "outlier_detection"),
		})
		require.Error(t, err)

		list, err := repo.ListVariants(ctx, src.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func variant(name, group string, d *dataset.Dataset, score float64, at time.Time, step string) storage.Variant {
	return storage.Variant{
		AlgorithmName: name,
		GroupKey:      group,
		Data:          d,
		RowCount:      d.Len(),
		ColumnCount:   d.Width(),
		QualityScore:  score,
		CreatedAt:     at,
		Scores:        []storage.ScoreRecord{{AlgorithmName: step, Score: score, Timestamp: at}},
	}
}
