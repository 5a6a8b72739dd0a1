// Package exporter turns a dashboard selection snapshot into a CSV document.
//
// Export is a pure function of (snapshot, data source): the header is "date"
// followed by the active indicator labels in catalog order, and there is one
// row per calendar day of the snapshot's range, ascending, with empty fields
// where the source has no value. Indicator columns are fetched concurrently
// after the snapshot is taken.
//
// Example usage:
//
//	snap := controller.Snapshot()
//	doc, err := exporter.Export(ctx, snap, source, exporter.Options{LineTerminator: exporter.CRLF})
//	if err != nil {
//		return err // always a *dashboard.ExportError
//	}
//
//	// Optionally keep a copy on disk
//	path, err := exporter.NewCSVWriter(paths.ExportsDir, logger).WriteDocument(ctx, doc)
package exporter
