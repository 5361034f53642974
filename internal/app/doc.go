// Package app wires the cleaning service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from the environment and an optional config.yaml
//  2. Initialize logging and OpenTelemetry
//  3. Open the configured storage backend and ensure its schema
//  4. Create the learner, run manager, websocket hub and event sinks
//  5. Build the services and the HTTP router
//
// # Usage
//
//	a, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := a.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Run stops on SIGINT or SIGTERM. The listener drains first, then in-flight
// runs are cancelled, the hub closes its clients, and storage, Redis and the
// telemetry providers are released.
//
// The package never calls os.Exit; errors go back to main.
package app
