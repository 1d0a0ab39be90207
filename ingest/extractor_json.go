package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

var _ Extractor = (*JSONExtractor)(nil)

// JSONExtractor implements Extractor for JSON documents.
// Recursively walks arbitrary JSON structures producing one "- path: value"
// bullet per leaf. Object keys are visited in sorted order.
type JSONExtractor struct{}

// NewJSONExtractor creates a JSON extractor.
func NewJSONExtractor() *JSONExtractor { return &JSONExtractor{} }

// maxJSONDepth limits recursion in flatten to prevent stack overflow
// from deeply nested JSON input.
const maxJSONDepth = 100

// Extract converts JSON content to a bullet list. A top-level "title" or
// "name" string becomes the document title.
func (e *JSONExtractor) Extract(content []byte) (Document, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return Document{}, nil
	}
	var data any
	if err := json.Unmarshal(content, &data); err != nil {
		return Document{}, fmt.Errorf("parse json: %w", err)
	}
	var doc Document
	if obj, ok := data.(map[string]any); ok {
		for _, k := range []string{"title", "name"} {
			if s, ok := obj[k].(string); ok && s != "" {
				doc.Title = s
				break
			}
		}
	}
	var lines []string
	flatten("", data, &lines, 0)
	for i, l := range lines {
		lines[i] = "- " + l
	}
	doc.Body = strings.Join(lines, "\n")
	return doc, nil
}

func flatten(prefix string, v any, lines *[]string, depth int) {
	if depth >= maxJSONDepth {
		*lines = append(*lines, fmt.Sprintf("%s: <truncated>", label(prefix)))
		return
	}
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, val[k], lines, depth+1)
		}
	case []any:
		if allPrimitive(val) {
			strs := make([]string, len(val))
			for i, item := range val {
				strs[i] = formatJSONValue(item)
			}
			*lines = append(*lines, fmt.Sprintf("%s: %s", label(prefix), strings.Join(strs, ", ")))
		} else {
			for _, item := range val {
				flatten(prefix, item, lines, depth+1)
			}
		}
	case nil:
		// skip null values
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %s", label(prefix), formatJSONValue(val)))
	}
}

func label(prefix string) string {
	if prefix == "" {
		return "value"
	}
	return prefix
}

func allPrimitive(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// formatJSONValue formats a primitive JSON value as a string.
func formatJSONValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", val)
	}
}
