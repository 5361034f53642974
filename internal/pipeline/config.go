package pipeline

import (
	"adaptiveclean/internal/transform"
)

// CleaningConfig parameterizes a run. It is produced per run by the feedback
// learner and is never persisted as is.
type CleaningConfig struct {
	ImputeStrategy string `json:"impute_strategy" validate:"omitempty,oneof=mean median ml"`
	OutlierMethod  string `json:"outlier_method" validate:"omitempty,oneof=iqr zscore"`
	Normalize      bool   `json:"normalize"`
	Standardize    bool   `json:"standardize"`
	ReduceNoise    bool   `json:"reduce_noise"`
	CleanText      bool   `json:"clean_text"`

	Rules         map[string]transform.Rule `json:"rules,omitempty" validate:"omitempty,dive"`
	ReferenceData map[string][]any          `json:"reference_data,omitempty"`
}

// DefaultConfig is the configuration used when nothing else is known.
func DefaultConfig() CleaningConfig {
	return CleaningConfig{
		ImputeStrategy: transform.ImputeMean,
		OutlierMethod:  transform.OutlierIQR,
		Normalize:      true,
	}
}

func (c CleaningConfig) imputeStrategy() string {
	if c.ImputeStrategy == "" {
		return transform.ImputeMean
	}
	return c.ImputeStrategy
}

func (c CleaningConfig) outlierMethod() string {
	if c.OutlierMethod == "" {
		return transform.OutlierIQR
	}
	return c.OutlierMethod
}

// Summary is the config as reported in run events and logs. Rules and
// reference data are reduced to counts.
func (c CleaningConfig) Summary() map[string]any {
	return map[string]any{
		"impute_strategy": c.imputeStrategy(),
		"outlier_method":  c.outlierMethod(),
		"normalize":       c.Normalize,
		"standardize":     c.Standardize,
		"reduce_noise":    c.ReduceNoise,
		"clean_text":      c.CleanText,
		"rules":           len(c.Rules),
		"reference_data":  len(c.ReferenceData),
	}
}
