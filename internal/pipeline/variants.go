package pipeline

import (
	"time"

	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/transform"
)

// VariantName is the persisted algorithm name of a group variant.
func VariantName(alg Algorithm, groupKey string) string {
	if groupKey == "" || groupKey == transform.AllGroup {
		return alg.String()
	}
	return alg.String() + "__" + groupKey
}

// BuildVariants structures the result dataset and splits it into one variant
// per group, "all" first. Every variant carries the run's mean score as its
// quality score; the step score records go on the "all" variant only, so
// history grows by one set per run.
func BuildVariants(sourceID string, result RunResult, now time.Time) ([]storage.Variant, transform.Details, error) {
	structured, details, err := transform.Structure(result.Dataset)
	if err != nil {
		return nil, nil, &StepError{StepID: "structuring", Label: "Structure dataset", Err: err}
	}

	groups := transform.Split(structured)
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	details["groups"] = keys

	score := result.QualityScore()
	variants := make([]storage.Variant, 0, len(groups))
	for i, g := range groups {
		name := VariantName(result.Algorithm, g.Key)
		var scores []storage.ScoreRecord
		if i == 0 {
			scores = make([]storage.ScoreRecord, len(result.Scores))
			for j, s := range result.Scores {
				scores[j] = storage.ScoreRecord{AlgorithmName: s.StepID, Score: s.Score, Timestamp: now}
			}
		}
		variants = append(variants, storage.Variant{
			SourceDatasetID: sourceID,
			AlgorithmName:   name,
			GroupKey:        g.Key,
			Data:            g.Data,
			RowCount:        g.Data.Len(),
			ColumnCount:     g.Data.Width(),
			QualityScore:    score,
			CreatedAt:       now,
			Scores:          scores,
		})
	}
	return variants, details, nil
}
