package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nevindra/memagent/memory"
)

func testFS(t *testing.T, opts ...memory.Option) *memory.FS {
	t.Helper()
	fs, err := memory.Open(filepath.Join(t.TempDir(), "memory"), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return fs
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func readNote(t *testing.T, fs *memory.FS, rel string) string {
	t.Helper()
	s, err := fs.NewSession().ReadFile(rel)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", rel, err)
	}
	return s
}

func TestImportMarkdownFile(t *testing.T) {
	fs := testFS(t)
	src := writeSource(t, "cat.md", "# Mittens\n\nMittens is a grey cat.\n")

	results, err := NewImporter(fs).Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(results) != 1 || results[0].Path != "entities/mittens.md" {
		t.Fatalf("results = %+v", results)
	}
	got := readNote(t, fs, "entities/mittens.md")
	want := "# Mittens\n\nSource: " + src + "\n\nMittens is a grey cat.\n"
	if got != want {
		t.Errorf("note = %q, want %q", got, want)
	}
	if results[0].Bytes != len(want) {
		t.Errorf("bytes = %d, want %d", results[0].Bytes, len(want))
	}
}

func TestImportTitleFromFilename(t *testing.T) {
	fs := testFS(t)
	src := writeSource(t, "trip_to-Lisbon.txt", "Flights booked for May.")

	results, err := NewImporter(fs).Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if results[0].Path != "entities/trip-to-lisbon.md" {
		t.Errorf("path = %s", results[0].Path)
	}
	if !strings.HasPrefix(readNote(t, fs, results[0].Path), "# trip to Lisbon\n") {
		t.Error("title not derived from file name")
	}
}

func TestImportURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/people/alice":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><title>Alice Smith</title></head><body><article><p>Alice is the user's sister and lives in Porto with two dogs.</p></article></body></html>`))
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name": "Garden", "plants": ["basil", "mint"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fs := testFS(t)
	results, err := NewImporter(fs, WithHTTPClient(srv.Client())).
		Import(context.Background(), srv.URL+"/people/alice", srv.URL+"/data.json")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if results[0].Path != "entities/alice-smith.md" || results[1].Path != "entities/garden.md" {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(readNote(t, fs, results[0].Path), "Porto") {
		t.Error("article text missing")
	}
	if !strings.Contains(readNote(t, fs, results[1].Path), "- plants: basil, mint") {
		t.Error("json bullets missing")
	}
}

func TestImportPartialFailure(t *testing.T) {
	fs := testFS(t)
	good := writeSource(t, "good.txt", "fine")
	missing := filepath.Join(t.TempDir(), "missing.txt")

	results, err := NewImporter(fs).Import(context.Background(), missing, good)
	if err == nil {
		t.Fatal("expected error")
	}
	if results[0].Err == nil || results[0].Path != "" {
		t.Errorf("missing source result = %+v", results[0])
	}
	if results[1].Err != nil || results[1].Path != "entities/good.md" {
		t.Errorf("good source result = %+v", results[1])
	}
}

func TestImportFetchLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		switch r.URL.Path {
		case "/exact.txt":
			w.Write([]byte(strings.Repeat("a", 64)))
		case "/big.txt":
			w.Write([]byte(strings.Repeat("b", 65)))
		case "/streamed.txt":
			// Flushing first sends the body chunked, without a Content-Length.
			w.(http.Flusher).Flush()
			w.Write([]byte(strings.Repeat("c", 200)))
		}
	}))
	defer srv.Close()

	fs := testFS(t)
	results, err := NewImporter(fs, WithHTTPClient(srv.Client()), WithMaxFetchBytes(64)).
		Import(context.Background(), srv.URL+"/exact.txt", srv.URL+"/big.txt", srv.URL+"/streamed.txt")
	if err == nil {
		t.Fatal("expected error")
	}
	if results[0].Err != nil {
		t.Errorf("body at the limit failed: %v", results[0].Err)
	}
	for _, r := range results[1:] {
		if r.Err == nil || !strings.Contains(r.Err.Error(), "64 byte limit") {
			t.Errorf("%s: err = %v, want limit error", r.Source, r.Err)
		}
		if r.Path != "" {
			t.Errorf("%s: truncated note written to %s", r.Source, r.Path)
		}
	}
}

func TestImportDoesNotOverwrite(t *testing.T) {
	fs := testFS(t)
	sess := fs.NewSession()
	if err := sess.CreateFile("entities/mittens.md", "hand written\n"); err != nil {
		t.Fatal(err)
	}
	src := writeSource(t, "mittens.md", "# Mittens\n\nimported")

	results, err := NewImporter(fs).Import(context.Background(), src)
	if err == nil {
		t.Fatal("expected error")
	}
	if memory.KindOf(results[0].Err) != memory.KindExists {
		t.Errorf("err = %v, want exists", results[0].Err)
	}
	if got := readNote(t, fs, "entities/mittens.md"); got != "hand written\n" {
		t.Errorf("note overwritten: %q", got)
	}
}

func TestImportRespectsFileLimit(t *testing.T) {
	fs := testFS(t, memory.WithLimits(memory.Limits{MaxFileBytes: 64}))
	src := writeSource(t, "big.txt", strings.Repeat("x", 200))

	results, _ := NewImporter(fs).Import(context.Background(), src)
	if memory.KindOf(results[0].Err) != memory.KindTooLarge {
		t.Fatalf("err = %v, want too_large", results[0].Err)
	}
	if ok, _ := fs.NewSession().FileExists("entities/big.md"); ok {
		t.Error("oversized note was written")
	}
}

func TestImportCustomDir(t *testing.T) {
	fs := testFS(t)
	src := writeSource(t, "n.txt", "x")
	results, err := NewImporter(fs, WithDir("inbox")).Import(context.Background(), src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if results[0].Path != "inbox/n.md" {
		t.Errorf("path = %s", results[0].Path)
	}
}

func TestImportEmptySource(t *testing.T) {
	fs := testFS(t)
	src := writeSource(t, "blank.txt", "   \n")
	results, _ := NewImporter(fs).Import(context.Background(), src)
	if results[0].Err == nil {
		t.Error("expected error for a source without text")
	}
}

func TestImportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("never"))
	}))
	defer srv.Close()

	_, err := NewImporter(testFS(t), WithHTTPClient(srv.Client())).Import(ctx, srv.URL+"/x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Mittens", "mittens"},
		{"Café Lumière", "cafe-lumiere"},
		{"  Alice & Bob's trip!! ", "alice-bob-s-trip"},
		{"2024 Q1 plan", "2024-q1-plan"},
		{"???", "note"},
		{"", "note"},
		{strings.Repeat("a", 100), strings.Repeat("a", maxSlugLen)},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
