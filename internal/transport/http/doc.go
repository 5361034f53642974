// Package http implements the HTTP handlers of the cleaning service. Handlers
// are thin: they decode and validate requests, call the services layer and
// render results. Every error goes through the shared errors.ErrorHandler so
// that clients always receive RFC 7807 problem details.
//
// # Routes
//
// APIRoutes assembles the /api tree:
//
//	POST   /datasets                          multipart upload
//	POST   /datasets/import/sheets            Google Sheets import
//	GET    /datasets/{id}                     dataset summary
//	GET    /datasets/{id}/profile             column statistics
//	GET    /datasets/{id}/variants            stored variants
//	GET    /datasets/{id}/variants/{name}/csv variant as CSV
//	POST   /datasets/{id}/runs                run and wait
//	POST   /datasets/{id}/runs/batch          several algorithms at once
//	GET    /datasets/{id}/runs/stream         run as server-sent events
//	GET    /runs, /runs/{id}                  in-flight runs
//	DELETE /runs/{id}                         cancel a run
//	GET    /algorithms                        catalog
//	POST   /feedback, /feedback/predictions   learner feedback
//	GET    /learning/report                   learning report
//	POST   /learning/reset, /learning/retrain learner maintenance
//	POST   /logs                              browser log forwarding
//	GET    /version                           build information
//
// The stream route is registered outside the request timeout; every other
// route is bounded by it.
//
// # Caller scope
//
// Dataset access is checked against the scope the Scope middleware reads
// from the X-Owner and X-Admin headers.
package http
