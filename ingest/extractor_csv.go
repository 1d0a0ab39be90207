package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

var _ Extractor = (*CSVExtractor)(nil)

// CSVExtractor implements Extractor for CSV documents.
// First row is treated as headers. Each subsequent row becomes one bullet:
// "- Header1: Value1, Header2: Value2".
type CSVExtractor struct{}

// NewCSVExtractor creates a CSV extractor.
func NewCSVExtractor() *CSVExtractor { return &CSVExtractor{} }

// Extract converts CSV content to a bullet list.
func (e *CSVExtractor) Extract(content []byte) (Document, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(content)) == 0 {
		return Document{}, nil
	}
	r := csv.NewReader(bytes.NewReader(content))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("read headers: %w", err)
	}
	var rows []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Document{}, fmt.Errorf("read row: %w", err)
		}
		var fields []string
		for i, val := range record {
			if i >= len(headers) {
				break
			}
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			fields = append(fields, fmt.Sprintf("%s: %s", strings.TrimSpace(headers[i]), val))
		}
		if len(fields) > 0 {
			rows = append(rows, "- "+strings.Join(fields, ", "))
		}
	}
	return Document{Body: strings.Join(rows, "\n")}, nil
}
