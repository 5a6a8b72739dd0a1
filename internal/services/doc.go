// Package services implements the business logic layer of the dashboard.
// It sits between the HTTP handlers and the dashboard controller, so the
// handlers stay thin and the rules about logging, metrics and change
// notification live in one place.
//
// # Available Services
//
//	- DashboardService: selection reads and mutations, change fan-out
//	- ExportService: CSV documents built from a selection snapshot
//	- HealthService: liveness, readiness and version information
//
// # Events
//
// Services publish to an EventPublisher. In the server that is the
// websocket hub; in tests and the CLI it may be nil, in which case nothing
// is published.
//
// # Error Handling
//
// Services return the typed errors of the dashboard package unchanged so
// handlers can map them to problem responses:
//
//	- *dashboard.NotFoundError for unknown indicators
//	- *dashboard.InvalidRangeError for inverted ranges
//	- *dashboard.ExportError for empty selections and data source failures
package services
