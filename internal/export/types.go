// Package export renders annotations as CSV, highlighted HTML and PDF, and
// archives exports to object storage.
package export

import (
	"errors"
	"time"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ArchiveResult points at an archived export.
type ArchiveResult struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int64     `json:"size"`
}

const (
	mimeCSV  = "text/csv; charset=utf-8"
	mimeHTML = "text/html; charset=utf-8"
	mimePDF  = "application/pdf"
)

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrArchiveUnavailable is returned when no object storage is configured.
	ErrArchiveUnavailable = errors.New("export archive unavailable")
)
