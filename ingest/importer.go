package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nevindra/memagent/memory"
)

// Result is the outcome of importing one source.
type Result struct {
	Source string
	Path   string // note path relative to the memory root; empty on failure
	Bytes  int
	Err    error
}

// Importer turns sources into notes under a memory root.
type Importer struct {
	fs          *memory.FS
	dir         string
	extractors  map[ContentType]Extractor
	client      *http.Client
	maxFetch    int64
	concurrency int
	logger      *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithDir sets the directory notes are written to (default "entities").
func WithDir(dir string) Option {
	return func(im *Importer) { im.dir = dir }
}

// WithExtractor registers an Extractor for a given ContentType.
func WithExtractor(ct ContentType, e Extractor) Option {
	return func(im *Importer) { im.extractors[ct] = e }
}

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *http.Client) Option {
	return func(im *Importer) { im.client = c }
}

// WithMaxFetchBytes caps the size of a URL response (default 1MB). A larger
// response fails that source rather than being truncated.
func WithMaxFetchBytes(n int64) Option {
	return func(im *Importer) { im.maxFetch = n }
}

// WithConcurrency sets how many sources are loaded at once (default 4).
// Writes are always sequential.
func WithConcurrency(n int) Option {
	return func(im *Importer) { im.concurrency = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// NewImporter creates an Importer writing into fs.
func NewImporter(fs *memory.FS, opts ...Option) *Importer {
	im := &Importer{
		fs:  fs,
		dir: memory.EntitiesDir,
		extractors: map[ContentType]Extractor{
			TypePlainText: PlainTextExtractor{},
			TypeMarkdown:  MarkdownExtractor{},
			TypeHTML:      HTMLExtractor{},
			TypeCSV:       NewCSVExtractor(),
			TypeJSON:      NewJSONExtractor(),
			TypePDF:       NewPDFExtractor(),
		},
		client:      &http.Client{Timeout: 30 * time.Second},
		maxFetch:    1 << 20,
		concurrency: 4,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(im)
	}
	if im.concurrency < 1 {
		im.concurrency = 1
	}
	return im
}

type note struct {
	title  string
	source string
	body   string
}

// Import loads every source concurrently, then writes one note per source in
// argument order. A failing source does not stop the others; its Result
// carries the error and the returned error summarizes the failures. Existing
// notes are never overwritten (memory.KindExists).
func (im *Importer) Import(ctx context.Context, sources ...string) ([]Result, error) {
	results := make([]Result, len(sources))
	notes := make([]note, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)
	for i, src := range sources {
		results[i].Source = src
		g.Go(func() error {
			n, err := im.load(gctx, src)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				results[i].Err = err
				return nil
			}
			notes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	sess := im.fs.NewSession()
	failed := 0
	for i := range results {
		if results[i].Err == nil {
			results[i].Path, results[i].Bytes, results[i].Err = im.write(sess, notes[i])
		}
		if err := results[i].Err; err != nil {
			failed++
			im.logger.Warn("import failed", "source", results[i].Source, "error", err)
			continue
		}
		im.logger.Info("imported", "source", results[i].Source, "path", results[i].Path, "bytes", results[i].Bytes)
	}
	if failed > 0 {
		return results, fmt.Errorf("import: %d of %d sources failed", failed, len(sources))
	}
	return results, nil
}

func (im *Importer) load(ctx context.Context, src string) (note, error) {
	var (
		data    []byte
		ct      ContentType
		pageURL *url.URL
		err     error
	)
	if isURL(src) {
		pageURL, _ = url.Parse(src)
		data, ct, err = im.fetch(ctx, src)
	} else {
		data, err = os.ReadFile(src)
		ct = ContentTypeFromExtension(filepath.Ext(src))
	}
	if err != nil {
		return note{}, err
	}

	ex, ok := im.extractors[ct]
	if !ok {
		ex = PlainTextExtractor{}
	}
	if h, isHTML := ex.(HTMLExtractor); isHTML && pageURL != nil {
		h.URL = pageURL
		ex = h
	}
	doc, err := ex.Extract(data)
	if err != nil {
		return note{}, fmt.Errorf("extract %s: %w", src, err)
	}
	if strings.TrimSpace(doc.Body) == "" {
		return note{}, fmt.Errorf("extract %s: no text", src)
	}
	if doc.Title == "" {
		doc.Title = titleFromSource(src)
	}
	return note{title: doc.Title, source: src, body: doc.Body}, nil
}

func (im *Importer) fetch(ctx context.Context, rawURL string) ([]byte, ContentType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; memagent/1.0)")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	if resp.ContentLength > im.maxFetch {
		return nil, "", fmt.Errorf("%s: response of %d bytes exceeds the %d byte limit", rawURL, resp.ContentLength, im.maxFetch)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxFetch+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > im.maxFetch {
		return nil, "", fmt.Errorf("%s: response exceeds the %d byte limit", rawURL, im.maxFetch)
	}
	return body, ContentTypeFromMIME(resp.Header.Get("Content-Type")), nil
}

func (im *Importer) write(sess *memory.Session, n note) (string, int, error) {
	if ok, err := sess.DirExists(im.dir); err != nil {
		return "", 0, err
	} else if !ok {
		if err := sess.CreateDir(im.dir); err != nil && !errors.Is(err, &memory.Error{Kind: memory.KindExists}) {
			return "", 0, err
		}
	}
	path := im.dir + "/" + Slug(n.title) + ".md"
	content := Render(n.title, n.source, n.body)
	if err := sess.CreateFile(path, content); err != nil {
		return "", 0, err
	}
	return path, len(content), nil
}

// Render formats a note: a level-one title, the source line and the body.
func Render(title, source, body string) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\nSource: ")
	b.WriteString(source)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteByte('\n')
	return b.String()
}

const maxSlugLen = 64

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug turns a title into a file stem: accents folded, lowercase ASCII
// letters and digits, other runs collapsed to "-". An empty result is "note".
func Slug(title string) string {
	folded, _, err := transform.String(foldMarks, title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			if b.Len() >= maxSlugLen {
				break
			}
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "note"
	}
	return b.String()
}

func titleFromSource(src string) string {
	if isURL(src) {
		if u, err := url.Parse(src); err == nil {
			base := strings.Trim(u.Path, "/")
			if i := strings.LastIndex(base, "/"); i >= 0 {
				base = base[i+1:]
			}
			if base != "" {
				return strings.TrimSuffix(base, filepath.Ext(base))
			}
			return u.Host
		}
	}
	base := filepath.Base(src)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}
