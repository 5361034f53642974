// Package pipeline resolves algorithm names into ordered step lists and runs
// them over a dataset.
//
// The catalog is a static table keyed by Algorithm. Resolving an algorithm
// with a CleaningConfig yields a Run: an immutable, ordered list of
// StepDescriptors. Executor.Run applies the steps strictly in order and
// returns a RunResult value holding the final dataset, the per-step quality
// scores and the run log. The executor keeps no state between runs.
//
// Example usage:
//
//	run, err := pipeline.DefaultCatalog().Resolve("full_pipeline", cfg)
//	if err != nil {
//		return err // errors.Is(err, pipeline.ErrUnsupportedAlgorithm)
//	}
//	result, err := pipeline.NewExecutor(logger).Run(ctx, ds, run)
//
// Finished results are turned into persisted variants by BuildVariants, which
// structures the dataset and splits it by a detected grouping column.
package pipeline
