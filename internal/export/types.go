// Package export renders daily and weekly reports as Markdown, PDF or DOCX.
package export

import "errors"

type Format string

const (
	FormatMarkdown Format = "md"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// ParseFormat accepts the format names used in query strings.
func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case FormatMarkdown, "markdown":
		return FormatMarkdown, true
	case FormatPDF:
		return FormatPDF, true
	case FormatDOCX:
		return FormatDOCX, true
	}
	return "", false
}

type Section struct {
	Heading string
	Body    string
}

// Document is a rendered report ready for export.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
	// Markdown is the report's stored rendered text.
	Markdown string
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrUnsupportedFormat     = errors.New("unsupported export format")
)
