package pipeline

import (
	"adaptiveclean/internal/transform"
)

// Stage groups steps by the kind of work they do.
type Stage string

const (
	StageProfiling   Stage = "profiling"
	StageCleaning    Stage = "cleaning"
	StageML          Stage = "ml"
	StageNLP         Stage = "nlp"
	StageStructuring Stage = "structuring"
	StageValidation  Stage = "validation"
)

// Step identifiers. They double as the names under which step quality
// scores are recorded.
const (
	StepImpute         = "missing_value_imputation"
	StepDedup          = "duplicate_removal"
	StepOutliers       = "outlier_detection"
	StepCoerce         = "data_type_correction"
	StepNormalize      = "normalization"
	StepStandardize    = "standardization"
	StepSmooth         = "noise_reduction"
	StepCleanText      = "text_cleaning"
	StepValidateRules  = "rule_based_validation"
	StepCrossReference = "cross_table_consistency"
)

// StepDescriptor is one named, immutable pipeline step.
type StepDescriptor struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Stage     Stage          `json:"stage"`
	Technique string         `json:"technique"`
	Transform transform.Func `json:"-"`
	Scored    bool           `json:"scored"`
}

// Run is the resolved, ordered step list for one algorithm and config.
type Run struct {
	Algorithm Algorithm        `json:"algorithm"`
	Config    CleaningConfig   `json:"config"`
	Steps     []StepDescriptor `json:"steps"`
}

// AlgorithmInfo describes a catalog entry for listings.
type AlgorithmInfo struct {
	Name        Algorithm `json:"name"`
	Description string    `json:"description"`
	Steps       []string  `json:"steps"`
}

type entry struct {
	description string
	steps       func(cfg CleaningConfig) []StepDescriptor
}

// Catalog maps algorithms to step builders.
type Catalog struct {
	entries map[Algorithm]entry
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{entries: map[Algorithm]entry{
		MissingValues: {"Fill missing values", func(cfg CleaningConfig) []StepDescriptor {
			return []StepDescriptor{imputeStep(cfg)}
		}},
		Duplicates: {"Remove duplicate rows", func(CleaningConfig) []StepDescriptor {
			return []StepDescriptor{dedupStep()}
		}},
		Outliers: {"Detect and winsorize outliers", func(cfg CleaningConfig) []StepDescriptor {
			return []StepDescriptor{outlierStep(cfg)}
		}},
		DataTypes: {"Correct column types", func(CleaningConfig) []StepDescriptor {
			return []StepDescriptor{coerceStep()}
		}},
		Normalization: {"Min-max normalize numeric columns", func(CleaningConfig) []StepDescriptor {
			return []StepDescriptor{normalizeStep()}
		}},
		TextCleaning: {"Normalize text columns", func(CleaningConfig) []StepDescriptor {
			return []StepDescriptor{cleanTextStep()}
		}},
		FullPipeline: {"Run every applicable cleaning step", fullPipeline},
	}}
}

// Resolve builds the run for an algorithm name.
func (c *Catalog) Resolve(name string, cfg CleaningConfig) (Run, error) {
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return Run{}, err
	}
	e, ok := c.entries[alg]
	if !ok {
		return Run{}, ErrUnsupportedAlgorithm
	}
	return Run{Algorithm: alg, Config: cfg, Steps: e.steps(cfg)}, nil
}

// List describes every algorithm with the steps a default config resolves to.
func (c *Catalog) List() []AlgorithmInfo {
	out := make([]AlgorithmInfo, 0, len(algorithms))
	for _, alg := range algorithms {
		e, ok := c.entries[alg]
		if !ok {
			continue
		}
		info := AlgorithmInfo{Name: alg, Description: e.description}
		for _, s := range e.steps(DefaultConfig()) {
			info.Steps = append(info.Steps, s.ID)
		}
		out = append(out, info)
	}
	return out
}

func fullPipeline(cfg CleaningConfig) []StepDescriptor {
	steps := []StepDescriptor{
		dedupStep(),
		imputeStep(cfg),
		outlierStep(cfg),
		coerceStep(),
	}
	if cfg.Normalize {
		steps = append(steps, normalizeStep())
	}
	if cfg.Standardize {
		steps = append(steps, StepDescriptor{
			ID: StepStandardize, Label: "Standardize numeric columns", Stage: StageCleaning,
			Technique: "z_score", Transform: transform.Standardize, Scored: true,
		})
	}
	if cfg.ReduceNoise {
		steps = append(steps, StepDescriptor{
			ID: StepSmooth, Label: "Reduce noise", Stage: StageML,
			Technique: "moving_average", Transform: transform.Smooth, Scored: true,
		})
	}
	if cfg.CleanText {
		steps = append(steps, cleanTextStep())
	}
	if len(cfg.Rules) > 0 {
		steps = append(steps, StepDescriptor{
			ID: StepValidateRules, Label: "Apply validation rules", Stage: StageValidation,
			Technique: "rules", Transform: transform.ValidateRules(cfg.Rules), Scored: true,
		})
	}
	if len(cfg.ReferenceData) > 0 {
		steps = append(steps, StepDescriptor{
			ID: StepCrossReference, Label: "Check reference data", Stage: StageValidation,
			Technique: "reference_lookup", Transform: transform.CrossTableConsistency(cfg.ReferenceData), Scored: true,
		})
	}
	return steps
}

func imputeStep(cfg CleaningConfig) StepDescriptor {
	stage := StageCleaning
	if cfg.imputeStrategy() == transform.ImputeML {
		stage = StageML
	}
	return StepDescriptor{
		ID: StepImpute, Label: "Impute missing values", Stage: stage,
		Technique: cfg.imputeStrategy(), Transform: transform.Impute(cfg.imputeStrategy()), Scored: true,
	}
}

func dedupStep() StepDescriptor {
	return StepDescriptor{
		ID: StepDedup, Label: "Remove duplicates", Stage: StageCleaning,
		Technique: "exact_match", Transform: transform.Dedup, Scored: true,
	}
}

func outlierStep(cfg CleaningConfig) StepDescriptor {
	return StepDescriptor{
		ID: StepOutliers, Label: "Handle outliers", Stage: StageCleaning,
		Technique: cfg.outlierMethod(), Transform: transform.Outliers(cfg.outlierMethod()), Scored: true,
	}
}

func coerceStep() StepDescriptor {
	return StepDescriptor{
		ID: StepCoerce, Label: "Correct data types", Stage: StageCleaning,
		Technique: "coercion", Transform: transform.CoerceTypes, Scored: true,
	}
}

func normalizeStep() StepDescriptor {
	return StepDescriptor{
		ID: StepNormalize, Label: "Normalize numeric columns", Stage: StageCleaning,
		Technique: "min_max", Transform: transform.Normalize, Scored: true,
	}
}

func cleanTextStep() StepDescriptor {
	return StepDescriptor{
		ID: StepCleanText, Label: "Clean text", Stage: StageNLP,
		Technique: "unicode_normalization", Transform: transform.CleanText, Scored: true,
	}
}
