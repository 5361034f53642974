package feedback

import (
	"log/slog"
	"strings"
	"time"

	"adaptiveclean/internal/stats"
)

// Adjustment bounds.
const (
	MinWeight           = 0.1
	MaxWeight           = 1.0
	WeightStep          = 0.1
	IssuePenalty        = 0.1
	ConfidenceStep      = 0.05
	ConfidenceWindow    = 10
	MinConfidence       = 0.1
	MaxConfidence       = 1.0
	DefaultQualityScore = 0.5
)

// familyByAlgorithm maps pipeline algorithm names to weight families.
var familyByAlgorithm = map[string]string{
	"missing_values": FamilyImputation,
	"outliers":       FamilyOutliers,
	"normalization":  FamilyNormalization,
	FamilyImputation: FamilyImputation,
	FamilyOutliers:   FamilyOutliers,
}

// FamilyFor returns the weight family steered by an algorithm or variant
// name. Group suffixes ("outliers__energy") are ignored.
func FamilyFor(algorithm string) (string, bool) {
	if i := strings.Index(algorithm, "__"); i >= 0 {
		algorithm = algorithm[:i]
	}
	fam, ok := familyByAlgorithm[algorithm]
	return fam, ok
}

// UserFeedback is a quality rating of a cleaned variant.
type UserFeedback struct {
	Algorithm string   `json:"algorithm" validate:"required"`
	Rating    float64  `json:"quality_rating" validate:"gte=0,lte=1"`
	Issues    []string `json:"issues,omitempty"`
}

// FeedbackOutcome reports the effect of one UserFeedback.
type FeedbackOutcome struct {
	Algorithm      string             `json:"algorithm"`
	Family         string             `json:"family,omitempty"`
	Performance    float64            `json:"performance_score"`
	Rating         float64            `json:"user_rating"`
	IssuesReported int                `json:"issues_reported"`
	UpdatedWeights map[string]float64 `json:"updated_weights"`
}

// Performance is clamp(rating · (1 − 0.1 · issues), 0, 1).
func Performance(rating float64, issues int) float64 {
	return stats.Clamp(rating*(1-IssuePenalty*float64(issues)), 0, 1)
}

// ApplyUserFeedback shifts every weight of the algorithm's family by
// (performance − 0.5) · 0.1, clamped to [0.1, 1]. Algorithms without a family
// are reported but change nothing.
func (l *Learner) ApplyUserFeedback(fb UserFeedback) FeedbackOutcome {
	perf := Performance(fb.Rating, len(fb.Issues))
	out := FeedbackOutcome{
		Algorithm:      fb.Algorithm,
		Performance:    perf,
		Rating:         fb.Rating,
		IssuesReported: len(fb.Issues),
		UpdatedWeights: map[string]float64{},
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.feedbackApplied++

	fam, ok := FamilyFor(fb.Algorithm)
	if !ok {
		return out
	}
	out.Family = fam
	delta := (perf - 0.5) * WeightStep
	for method, w := range l.weights[fam] {
		nw := stats.Clamp(w+delta, MinWeight, MaxWeight)
		l.weights[fam][method] = nw
		out.UpdatedWeights[method] = nw
	}
	l.lastUpdated = time.Now().UTC()
	l.logger.Info("weights_adjusted",
		slog.String("family", fam),
		slog.Float64("performance_score", perf),
		slog.Float64("delta", delta))
	return out
}

// PredictionFeedback is a user's accuracy judgement of a downstream
// prediction.
type PredictionFeedback struct {
	PredictionType     string  `json:"prediction_type" validate:"required"`
	OriginalConfidence float64 `json:"original_confidence" validate:"gte=0,lte=1"`
	Accuracy           float64 `json:"prediction_accuracy" validate:"gte=0,lte=1"`
}

// RecordPredictionFeedback stores (accuracy − confidence) · 0.05 as an
// adjustment for the prediction type and returns it.
func (l *Learner) RecordPredictionFeedback(fb PredictionFeedback) float64 {
	adj := (fb.Accuracy - fb.OriginalConfidence) * ConfidenceStep
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adjustments[fb.PredictionType] = append(l.adjustments[fb.PredictionType], adj)
	l.feedbackApplied++
	l.lastUpdated = time.Now().UTC()
	return adj
}

// AdjustedConfidence adds the mean of the last ten adjustments for the type
// to base and clamps to [0.1, 1]. Without adjustments base is returned as is.
func (l *Learner) AdjustedConfidence(predictionType string, base float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	adj := l.adjustments[predictionType]
	if len(adj) == 0 {
		return base
	}
	if len(adj) > ConfidenceWindow {
		adj = adj[len(adj)-ConfidenceWindow:]
	}
	return stats.Clamp(base+stats.Mean(adj), MinConfidence, MaxConfidence)
}

// Report is the learning progress summary.
type Report struct {
	Weights               Weights            `json:"algorithm_weights"`
	PredictionAdjustments map[string]int     `json:"prediction_adjustments"`
	AdjustedConfidence    map[string]float64 `json:"adjusted_confidence"`
	Training              ReportTraining     `json:"training"`
	Counters              map[string]int     `json:"counters"`
	LastUpdated           time.Time          `json:"last_updated"`
}

// ReportTraining describes model state.
type ReportTraining struct {
	OnlineTrained   bool           `json:"online_trained"`
	BackpropTrained bool           `json:"backprop_trained"`
	Last            TrainingResult `json:"last"`
}

// Report returns a snapshot of the learner. Adjusted confidence is reported
// against DefaultQualityScore.
func (l *Learner) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int, len(l.adjustments))
	conf := make(map[string]float64, len(l.adjustments))
	for typ, adj := range l.adjustments {
		counts[typ] = len(adj)
		recent := adj
		if len(recent) > ConfidenceWindow {
			recent = recent[len(recent)-ConfidenceWindow:]
		}
		conf[typ] = stats.Clamp(DefaultQualityScore+stats.Mean(recent), MinConfidence, MaxConfidence)
	}
	return Report{
		Weights:               l.weights.clone(),
		PredictionAdjustments: counts,
		AdjustedConfidence:    conf,
		Training: ReportTraining{
			OnlineTrained:   l.onlineTrained,
			BackpropTrained: l.backpropTrained,
			Last:            l.lastTraining,
		},
		Counters: map[string]int{
			"trainings":        l.trainings,
			"recommendations":  l.recommendations,
			"feedback_applied": l.feedbackApplied,
		},
		LastUpdated: l.lastUpdated,
	}
}
