// Package feedback chooses cleaning configurations from dataset
// characteristics and the quality-score history.
//
// The Learner combines three sources, applied in order: a weight-driven
// heuristic baseline, an active-learning recommendation from two online
// regressors (a linear SGD model and a small backprop network) and a set of
// history overrides. User feedback shifts the weights over time. All learner
// state is guarded by a mutex, so one Learner is shared by every run.
package feedback

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/stats"
	"adaptiveclean/internal/transform"
)

// Weight families, named after the steps they steer.
const (
	FamilyImputation    = "missing_value_imputation"
	FamilyOutliers      = "outlier_detection"
	FamilyNormalization = "normalization"
)

// Training limits and history thresholds.
const (
	MaxTrainingRecords = 500
	MinHistory         = 8
	MinFeatureRows     = 5
	FeatureWindow      = 5
	OnlineRefreshRows  = 20
	SlopeWindow        = 20
	HighQuality        = 0.90
	LowQuality         = 0.75
	HighQualityRate    = 0.60
	DecliningSlope     = -0.01
)

// Training failure reasons.
const (
	ReasonInsufficientHistory  = "insufficient_history"
	ReasonInsufficientFeatures = "insufficient_features"
)

// Model labels reported with a recommendation.
const (
	ModelHeuristic = "heuristic_fallback"
	ModelBoth      = "online+backprop"
	ModelOnline    = "online"
	ModelBackprop  = "backprop"
)

// Weights maps a family to method weights.
type Weights map[string]map[string]float64

func defaultWeights() Weights {
	return Weights{
		FamilyImputation:    {"mean": 0.5, "median": 0.3, "ml": 0.2},
		FamilyOutliers:      {"iqr": 0.6, "zscore": 0.4},
		FamilyNormalization: {"min_max": 0.7, "z_score": 0.3},
	}
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for fam, methods := range w {
		m := make(map[string]float64, len(methods))
		for k, v := range methods {
			m[k] = v
		}
		out[fam] = m
	}
	return out
}

// TrainingResult reports what Train did.
type TrainingResult struct {
	Trained bool   `json:"trained"`
	Reason  string `json:"reason,omitempty"`
	Samples int    `json:"samples,omitempty"`
}

// Recommendation is the outcome of the active-learning selection.
type Recommendation struct {
	Config           pipeline.CleaningConfig `json:"config"`
	Model            string                  `json:"model"`
	PredictedQuality float64                 `json:"predicted_quality"`
	Uncertainty      float64                 `json:"uncertainty"`
}

// HistorySnapshot summarizes the history a config was resolved from.
type HistorySnapshot struct {
	Records   int     `json:"records"`
	Mean      float64 `json:"mean"`
	HighRate  float64 `json:"high_quality_rate"`
	Slope     float64 `json:"slope"`
	Declining bool    `json:"declining"`
}

// Resolution is what ResolveConfig returns.
type Resolution struct {
	Config         pipeline.CleaningConfig `json:"config"`
	Recommendation Recommendation          `json:"recommendation"`
	Training       TrainingResult          `json:"training"`
	History        HistorySnapshot         `json:"history"`
	Overrides      []string                `json:"overrides,omitempty"`
}

// Option configures a Learner.
type Option func(*Learner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lr *Learner) {
		if l != nil {
			lr.logger = l
		}
	}
}

// WithModels replaces the regressors. Either may be nil to keep the default.
func WithModels(online OnlineModel, backprop BatchModel) Option {
	return func(lr *Learner) {
		if online != nil {
			lr.newOnline = func() OnlineModel { return online }
		}
		if backprop != nil {
			lr.newBackprop = func() BatchModel { return backprop }
		}
	}
}

// Learner is the adaptive configuration selector.
type Learner struct {
	mu sync.Mutex

	logger      *slog.Logger
	newOnline   func() OnlineModel
	newBackprop func() BatchModel

	weights         Weights
	adjustments     map[string][]float64
	online          OnlineModel
	backprop        BatchModel
	onlineTrained   bool
	backpropTrained bool
	lastTraining    TrainingResult
	trainings       int
	recommendations int
	feedbackApplied int
	lastUpdated     time.Time
}

// NewLearner returns a learner with default weights and untrained models.
func NewLearner(opts ...Option) *Learner {
	l := &Learner{
		logger:      slog.Default(),
		newOnline:   func() OnlineModel { return NewSGDRegressor() },
		newBackprop: func() BatchModel { return NewMLPRegressor() },
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "feedback_learner"))
	l.resetLocked()
	return l
}

func (l *Learner) resetLocked() {
	l.weights = defaultWeights()
	l.adjustments = map[string][]float64{}
	l.online = l.newOnline()
	l.backprop = l.newBackprop()
	l.onlineTrained = false
	l.backpropTrained = false
	l.lastTraining = TrainingResult{}
	l.trainings = 0
	l.recommendations = 0
	l.feedbackApplied = 0
	l.lastUpdated = time.Now().UTC()
}

// Reset restores default weights and discards trained models and feedback.
func (l *Learner) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
	l.logger.Info("learning_reset")
}

// Weights returns a copy of the current weights.
func (l *Learner) Weights() Weights {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.weights.clone()
}

// Features builds the training rows from chronological scores: for every
// index i ≥ 3 the row is [i/n, mean(w), std(w)] over the up to five
// preceding scores, with score[i] as target.
func Features(scores []float64) ([][]float64, []float64) {
	n := len(scores)
	var X [][]float64
	var y []float64
	for i := 3; i < n; i++ {
		lo := i - FeatureWindow
		if lo < 0 {
			lo = 0
		}
		w := scores[lo:i]
		X = append(X, []float64{float64(i) / float64(n), stats.Mean(w), stats.Std(w)})
		y = append(y, scores[i])
	}
	return X, y
}

// Train updates the regressors from chronological history. Only the most
// recent MaxTrainingRecords scores are used.
func (l *Learner) Train(history []float64) TrainingResult {
	if len(history) > MaxTrainingRecords {
		history = history[len(history)-MaxTrainingRecords:]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res := l.trainLocked(history)
	l.lastTraining = res
	if res.Trained {
		l.trainings++
		l.lastUpdated = time.Now().UTC()
	}
	return res
}

func (l *Learner) trainLocked(history []float64) TrainingResult {
	if len(history) < MinHistory {
		return TrainingResult{Reason: ReasonInsufficientHistory}
	}
	X, y := Features(history)
	if len(X) < MinFeatureRows {
		return TrainingResult{Reason: ReasonInsufficientFeatures}
	}

	if !l.onlineTrained {
		l.online.PartialFit(X, y)
		l.onlineTrained = true
	} else {
		from := len(X) - OnlineRefreshRows
		if from < 0 {
			from = 0
		}
		l.online.PartialFit(X[from:], y[from:])
	}

	l.backprop.Fit(X, y)
	l.backpropTrained = true

	return TrainingResult{Trained: true, Samples: len(X)}
}

// Baseline is the weight-driven heuristic configuration.
func (l *Learner) Baseline(ch dataset.Characteristics) pipeline.CleaningConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baselineLocked(ch)
}

func (l *Learner) baselineLocked(ch dataset.Characteristics) pipeline.CleaningConfig {
	imp := l.weights[FamilyImputation]
	var strategy string
	skew := math.Abs(ch.Skewness)
	switch {
	case skew > 1:
		strategy = pick(imp["median"] > 0.4, transform.ImputeMedian, transform.ImputeML)
	case skew < 0.5:
		strategy = pick(imp["mean"] > 0.4, transform.ImputeMean, transform.ImputeML)
	default:
		strategy = pick(imp["ml"] > 0.3, transform.ImputeML, transform.ImputeMean)
	}

	out := l.weights[FamilyOutliers]
	var method string
	if ch.Distribution == dataset.DistributionNormal {
		method = pick(out["zscore"] > 0.4, transform.OutlierZScore, transform.OutlierIQR)
	} else {
		method = pick(out["iqr"] > 0.5, transform.OutlierIQR, transform.OutlierZScore)
	}

	return pipeline.CleaningConfig{
		ImputeStrategy: strategy,
		OutlierMethod:  method,
		Normalize:      ch.HasNumeric,
		Standardize:    false,
		ReduceNoise:    ch.Rows > 80,
		CleanText:      ch.HasText,
	}
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

type candidate struct {
	impute      string
	outliers    string
	normalize   bool
	standardize bool
}

var candidates = []candidate{
	{transform.ImputeMean, transform.OutlierIQR, true, false},
	{transform.ImputeMedian, transform.OutlierIQR, true, false},
	{transform.ImputeML, transform.OutlierZScore, false, true},
}

type scored struct {
	c           candidate
	pred        float64
	uncertainty float64
	model       string
}

// Recommend predicts the quality of each candidate config and returns the
// best one merged over the baseline. Ties on predicted quality go to the
// candidate the two models disagree on most. Without trained models the
// baseline is returned as heuristic_fallback.
func (l *Learner) Recommend(ch dataset.Characteristics, histAvg, highRate float64) Recommendation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recommendLocked(ch, histAvg, highRate)
}

func (l *Learner) recommendLocked(ch dataset.Characteristics, histAvg, highRate float64) Recommendation {
	l.recommendations++
	base := l.baselineLocked(ch)
	if !l.onlineTrained && !l.backpropTrained {
		return Recommendation{Config: base, Model: ModelHeuristic, PredictedQuality: histAvg}
	}

	feature := []float64{math.Abs(ch.Skewness), histAvg, highRate}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		var s scored
		s.c = c
		switch {
		case l.onlineTrained && l.backpropTrained:
			on, bp := l.online.Predict(feature), l.backprop.Predict(feature)
			s.pred = (on + bp) / 2
			s.uncertainty = math.Abs(on - bp)
			s.model = ModelBoth
		case l.onlineTrained:
			on := l.online.Predict(feature)
			s.pred = on
			s.uncertainty = math.Abs(on - histAvg)
			s.model = ModelOnline
		default:
			bp := l.backprop.Predict(feature)
			s.pred = bp
			s.uncertainty = math.Abs(bp - histAvg)
			s.model = ModelBackprop
		}
		s.pred = stats.Clamp(s.pred, 0, 1)
		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].pred != ranked[j].pred {
			return ranked[i].pred > ranked[j].pred
		}
		return ranked[i].uncertainty > ranked[j].uncertainty
	})
	win := ranked[0]

	cfg := base
	cfg.ImputeStrategy = win.c.impute
	cfg.OutlierMethod = win.c.outliers
	cfg.Normalize = win.c.normalize
	cfg.Standardize = win.c.standardize

	return Recommendation{
		Config:           cfg,
		Model:            win.model,
		PredictedQuality: round4(win.pred),
		Uncertainty:      round4(win.uncertainty),
	}
}

func round4(f float64) float64 { return math.Round(f*1e4) / 1e4 }

// Snapshot summarizes chronological history.
func Snapshot(history []float64) HistorySnapshot {
	s := HistorySnapshot{Records: len(history)}
	if len(history) == 0 {
		return s
	}
	s.Mean = stats.Mean(history)
	high := 0
	for _, v := range history {
		if v >= HighQuality {
			high++
		}
	}
	s.HighRate = float64(high) / float64(len(history))
	recent := history
	if len(recent) > SlopeWindow {
		recent = recent[len(recent)-SlopeWindow:]
	}
	s.Slope = stats.Slope(recent)
	s.Declining = len(recent) >= 2 && s.Slope < DecliningSlope
	return s
}

// ApplyOverrides adjusts cfg from history. Rules run in order so a later
// rule wins over an earlier one. It returns the names of the rules applied.
func ApplyOverrides(cfg pipeline.CleaningConfig, h HistorySnapshot) (pipeline.CleaningConfig, []string) {
	var applied []string
	if h.Records > 0 && (h.Mean >= HighQuality || h.HighRate >= HighQualityRate) {
		cfg.ImputeStrategy = transform.ImputeML
		cfg.OutlierMethod = transform.OutlierZScore
		cfg.Standardize = true
		cfg.Normalize = false
		applied = append(applied, "high_quality_history")
	}
	if h.Records > 0 && h.Mean < LowQuality {
		cfg.ImputeStrategy = transform.ImputeMedian
		cfg.OutlierMethod = transform.OutlierIQR
		applied = append(applied, "low_quality_history")
	}
	if h.Declining {
		cfg.ImputeStrategy = transform.ImputeML
		cfg.OutlierMethod = transform.OutlierZScore
		cfg.CleanText = true
		applied = append(applied, "declining_trend")
	}
	return cfg, applied
}

// ResolveConfig trains on the chronological history, asks for a
// recommendation and applies the history overrides. A training shortfall only
// falls back to the heuristic path.
func (l *Learner) ResolveConfig(ctx context.Context, ch dataset.Characteristics, history []float64) Resolution {
	training := l.Train(history)
	if !training.Trained {
		l.logger.DebugContext(ctx, "training_skipped",
			slog.String("reason", training.Reason),
			slog.Int("history", len(history)))
	}

	snap := Snapshot(history)
	rec := l.Recommend(ch, snap.Mean, snap.HighRate)
	cfg, applied := ApplyOverrides(rec.Config, snap)

	l.logger.InfoContext(ctx, "config_resolved",
		slog.String("model", rec.Model),
		slog.String("impute_strategy", cfg.ImputeStrategy),
		slog.String("outlier_method", cfg.OutlierMethod),
		slog.Int("history", snap.Records),
		slog.Any("overrides", applied))

	return Resolution{
		Config:         cfg,
		Recommendation: rec,
		Training:       training,
		History:        snap,
		Overrides:      applied,
	}
}
