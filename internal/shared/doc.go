// Package shared holds code used across packages that belongs to no single
// domain or layer.
//
// The testutil subpackage provides the scenario dashboard fixtures (four
// panels, four indicators, a three-day range), a fixed clock and a buffered
// slog handler for asserting on log output:
//
//	logger, handler := testutil.NewTestLogger(t)
//	svc := services.NewHealthService(controller, nil, nil, logger)
//	...
//	testutil.AssertLogContains(t, handler, slog.LevelInfo, "HealthService initialized")
package shared
