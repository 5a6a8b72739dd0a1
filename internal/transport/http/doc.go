// Package http implements the HTTP request handlers of the dashboard API.
// Handlers are a thin layer between transport and the services package:
// they parse and validate requests, call a service, and render the result.
//
// # Routes
//
// Mounted under /api/v1/dashboard:
//
//	GET  /indicators              catalog with active flags
//	PUT  /indicators              replace the active set
//	POST /indicators/{id}/toggle  toggle one indicator
//	GET  /panels                  panels with renderability
//	GET  /selection               current selection
//	PUT  /range                   set the date range
//	POST /reset                   restore defaults
//	GET  /view                    rendering-agnostic view
//	GET  /export.csv              CSV download
//
// Health and version endpoints are served by HealthHandler, and runtime
// statistics by MetricsHandler.
//
// # Error Handling
//
// All errors are rendered as RFC 7807 problem details by
// errors.ErrorHandler:
//
//	{
//	    "type": "/errors/dashboard/indicator-not-found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "indicator \"XYZ\" not found",
//	    "instance": "/api/v1/dashboard/indicators/XYZ/toggle"
//	}
//
// # Testing
//
// Handlers are tested with httptest against real services built from a
// fixture catalog.
package http
