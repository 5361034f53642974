package services

import (
	"context"
	"log/slog"

	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/infrastructure"
	"adaptiveclean/internal/storage"
)

// LearningService feeds user judgements into the learner.
type LearningService struct {
	learner      *feedback.Learner
	history      storage.HistoryReader
	historyLimit int
	logger       *slog.Logger
}

// NewLearningService creates the service. history may be nil, in which case
// Retrain trains on an empty history.
func NewLearningService(learner *feedback.Learner, history storage.HistoryReader, historyLimit int, logger *slog.Logger) *LearningService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if historyLimit <= 0 {
		historyLimit = feedback.MaxTrainingRecords
	}
	return &LearningService{
		learner:      learner,
		history:      history,
		historyLimit: historyLimit,
		logger:       infrastructure.WithComponent(logger, "learning_service"),
	}
}

// Feedback applies a quality rating to the weights of the algorithm's family.
func (s *LearningService) Feedback(ctx context.Context, fb feedback.UserFeedback) feedback.FeedbackOutcome {
	out := s.learner.ApplyUserFeedback(fb)
	s.logger.InfoContext(ctx, "user_feedback_applied",
		slog.String("algorithm", fb.Algorithm),
		slog.String("family", out.Family),
		slog.Float64("rating", fb.Rating),
		slog.Int("issues", len(fb.Issues)),
		slog.Float64("performance_score", out.Performance))
	return out
}

// PredictionOutcome reports the effect of one PredictionFeedback.
type PredictionOutcome struct {
	PredictionType     string  `json:"prediction_type"`
	Adjustment         float64 `json:"adjustment"`
	AdjustedConfidence float64 `json:"adjusted_confidence"`
}

// PredictionFeedback records an accuracy judgement and returns the
// confidence the learner now reports for the original confidence.
func (s *LearningService) PredictionFeedback(ctx context.Context, fb feedback.PredictionFeedback) PredictionOutcome {
	adj := s.learner.RecordPredictionFeedback(fb)
	out := PredictionOutcome{
		PredictionType:     fb.PredictionType,
		Adjustment:         adj,
		AdjustedConfidence: s.learner.AdjustedConfidence(fb.PredictionType, fb.OriginalConfidence),
	}
	s.logger.InfoContext(ctx, "prediction_feedback_recorded",
		slog.String("prediction_type", fb.PredictionType),
		slog.Float64("adjustment", adj))
	return out
}

// Report summarizes what the learner has learned so far.
func (s *LearningService) Report() feedback.Report {
	return s.learner.Report()
}

// Retrain trains the models on the stored score history.
func (s *LearningService) Retrain(ctx context.Context) (feedback.TrainingResult, error) {
	var scores []float64
	if s.history != nil {
		recs, err := s.history.RecentScores(ctx, s.historyLimit)
		if err != nil {
			return feedback.TrainingResult{}, err
		}
		scores = storage.Chronological(recs)
	}
	res := s.learner.Train(scores)
	s.logger.InfoContext(ctx, "learner_retrained", slog.Int("records", len(scores)))
	return res, nil
}

// Reset restores the default weights and forgets every adjustment.
func (s *LearningService) Reset(ctx context.Context) {
	s.learner.Reset()
	s.logger.InfoContext(ctx, "learner_reset")
}
