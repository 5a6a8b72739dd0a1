// Package dashboard implements indicator selection for the risk dashboard.
//
// A Layout declares panels and indicators. Building it yields an immutable
// Registry (panels) and Catalog (indicators); references between the two are
// checked once, at startup, and inconsistencies fail with ConfigurationError.
//
// The Controller owns the Selection: which indicators are active and which
// date range is shown. All mutations go through it, are atomic, and are
// announced to subscribers. RenderablePanels and ActiveIndicators are derived
// on every call. Snapshot copies the selection so that an export can run
// without observing later changes.
//
// BuildView turns panel states and active indicators into a plain view
// description for any rendering surface.
package dashboard
