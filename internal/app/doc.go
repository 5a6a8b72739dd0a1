// Package app wires the dashboard server together and manages its lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from defaults, the YAML file and STRAIT_* variables
//  2. Initialize the JSON logger and OpenTelemetry providers
//  3. Build the dashboard layout and the selection controller
//  4. Open the configured data source (cache and file watcher included)
//  5. Create the WebSocket hub and the dashboard, export and health services
//  6. Mount handlers and middleware on a chi router
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests, stops
// the hub, closes the data source and flushes telemetry. Initialization errors
// are returned to the caller; the package never calls os.Exit.
package app
