package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/storage"
	"adaptiveclean/internal/storage/memory"
)

func TestLearningServiceFeedback(t *testing.T) {
	learner := feedback.NewLearner(feedback.WithLogger(testLogger()))
	svc := NewLearningService(learner, nil, 0, testLogger())

	out := svc.Feedback(context.Background(), feedback.UserFeedback{Algorithm: "outliers", Rating: 1})
	assert.Equal(t, feedback.FamilyOutliers, out.Family)
	assert.InDelta(t, 1.0, out.Performance, 1e-12)
	assert.NotEmpty(t, out.UpdatedWeights)

	report := svc.Report()
	assert.Equal(t, 1, report.Counters["feedback_applied"])

	svc.Reset(context.Background())
	assert.Equal(t, 0, svc.Report().Counters["feedback_applied"])
}

func TestLearningServicePredictionFeedback(t *testing.T) {
	svc := NewLearningService(feedback.NewLearner(), nil, 0, testLogger())

	out := svc.PredictionFeedback(context.Background(), feedback.PredictionFeedback{
		PredictionType: "forecast", OriginalConfidence: 0.5, Accuracy: 0.9,
	})
	assert.Equal(t, "forecast", out.PredictionType)
	assert.InDelta(t, 0.02, out.Adjustment, 1e-12)
	assert.InDelta(t, 0.52, out.AdjustedConfidence, 1e-12)
}

func TestLearningServiceRetrain(t *testing.T) {
	repo := memory.New()
	svc := NewLearningService(feedback.NewLearner(), repo, 0, testLogger())

	res, err := svc.Retrain(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Trained)
	assert.Equal(t, feedback.ReasonInsufficientHistory, res.Reason)

	scores := make([]storage.ScoreRecord, 30)
	for i := range scores {
		scores[i] = storage.ScoreRecord{AlgorithmName: "duplicates", Score: 0.5 + float64(i%5)/10, Timestamp: time.Unix(int64(i), 0)}
	}
	_, err = repo.SaveVariants(context.Background(), "ds-1", []storage.Variant{{AlgorithmName: "duplicates", Scores: scores}})
	require.NoError(t, err)

	res, err = svc.Retrain(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Trained)
	assert.True(t, svc.Report().Training.BackpropTrained)

	_, err = NewLearningService(feedback.NewLearner(), failingHistory{}, 10, testLogger()).Retrain(context.Background())
	assert.EqualError(t, err, "connection refused")
}
