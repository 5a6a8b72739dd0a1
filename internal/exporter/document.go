package exporter

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"straitpulse/internal/dashboard"
	"straitpulse/pkg/contracts/domain"
)

// ContentType of every document
const ContentType = "text/csv; charset=utf-8"

const utf8BOM = "\ufeff"

// Document is a finished CSV export
type Document struct {
	Filename   string
	Bytes      []byte
	Digest     string
	Indicators []string
	Range      domain.DateRange
	Rows       int
	// Version is the selection version the document was built from
	Version     uint64
	GeneratedAt time.Time
}

func newDocument(snap dashboard.Snapshot, body []byte, rows int, opts Options) *Document {
	sum := blake2b.Sum256(body)
	return &Document{
		Filename:    Filename(opts.FilePrefix, snap.Range),
		Bytes:       body,
		Digest:      hex.EncodeToString(sum[:]),
		Indicators:  snap.IDs(),
		Range:       snap.Range,
		Rows:        rows,
		Version:     snap.Version,
		GeneratedAt: opts.Now().UTC(),
	}
}

// Filename names the document after its span
func Filename(prefix string, r domain.DateRange) string {
	return fmt.Sprintf("%s_%s_%s.csv", prefix, domain.FormatDate(r.Start), domain.FormatDate(r.End))
}

// ETag returns the strong entity tag for HTTP responses
func (d *Document) ETag() string {
	return `"` + d.Digest + `"`
}

// Columns is the number of CSV columns including the date column
func (d *Document) Columns() int {
	return len(d.Indicators) + 1
}

// Size is the document length in bytes
func (d *Document) Size() int {
	return len(d.Bytes)
}
