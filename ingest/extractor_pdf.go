package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var _ Extractor = (*PDFExtractor)(nil)

// PDFExtractor implements Extractor for PDF documents. Each page with text
// becomes a "## Page N" section. Pages that fail to decode are skipped.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Extract extracts text page by page.
func (e *PDFExtractor) Extract(content []byte) (Document, error) {
	if len(content) == 0 {
		return Document{}, fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}
	var sections []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("## Page %d\n\n%s", i, text))
	}
	if len(sections) == 0 {
		return Document{}, fmt.Errorf("pdf has no extractable text")
	}
	return Document{Body: strings.Join(sections, "\n\n")}, nil
}
