package ingest

import (
	"testing"
)

func TestPDFExtractEmptyContent(t *testing.T) {
	e := NewPDFExtractor()
	_, err := e.Extract(nil)
	if err == nil {
		t.Error("expected error for empty content")
	}
}

func TestPDFExtractGarbage(t *testing.T) {
	e := NewPDFExtractor()
	_, err := e.Extract([]byte("definitely not a pdf"))
	if err == nil {
		t.Error("expected error for non-PDF content")
	}
}
