// Package services implements the business logic layer of the cleaning
// service. It sits between the HTTP handlers and the run controller, storage
// and learner, so that handlers only decode requests and encode responses.
//
// # Services
//
//	DatasetService   uploads, sheet imports, lookup and profiling
//	CleaningService  single and batch runs, streaming, variant export
//	LearningService  user feedback, prediction feedback, learning report
//	HealthService    liveness, readiness and version
//
// # Common Service Pattern
//
// Services take their collaborators as interfaces and a logger:
//
//	type DatasetService struct {
//	    store  DatasetStore
//	    logger *slog.Logger
//	}
//
// Every method takes a context.Context first. Errors from storage and the
// controller are returned unwrapped or wrapped with %w so handlers can map
// them with errors.Is and errors.As.
package services
