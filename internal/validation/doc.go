// Package validation checks filesystem inputs and outputs before the
// dashboard uses them: data directories and workbooks for file-backed
// sources, and export destinations.
package validation
