package memory

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// wikiLink matches [[target]], [[target|alias]] and [[target#heading]].
var wikiLink = regexp.MustCompile(`\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)

var markdown = goldmark.New()

// ListLinks returns the link targets found in a file, in order of first
// appearance: wiki links as written, Markdown links by destination.
func (s *Session) ListLinks(name string) ([]string, error) {
	content, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return extractLinks([]byte(content)), nil
}

// GoToLink reads the file a link points at. Links are resolved from the
// root, and a target without an extension gets ".md".
func (s *Session) GoToLink(link string) (string, error) {
	const op = "go_to_link"
	target := normalizeLink(link)
	if target == "" {
		return "", newErr(KindNotFound, op, link, "empty link")
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Scheme != "file" {
		return "", newErr(KindScope, op, link, "external links cannot be followed")
	}

	rootSession := &Session{fs: s.fs, cwd: "."}
	target = strings.TrimPrefix(target, "/")
	if path.Ext(target) == "" {
		if ok, _ := rootSession.FileExists(target); !ok {
			target += ".md"
		}
	}
	return rootSession.ReadFile(target)
}

func normalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if m := wikiLink.FindStringSubmatch(link); m != nil {
		return strings.TrimSpace(m[1])
	}
	link = strings.TrimPrefix(link, "[[")
	link = strings.TrimSuffix(link, "]]")
	if i := strings.IndexAny(link, "|#"); i >= 0 {
		link = link[:i]
	}
	if unescaped, err := url.PathUnescape(link); err == nil {
		link = unescaped
	}
	return strings.TrimSpace(link)
}

func extractLinks(src []byte) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(l string) {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			return
		}
		seen[l] = true
		out = append(out, l)
	}

	for _, m := range wikiLink.FindAllSubmatch(src, -1) {
		add(string(m[1]))
	}

	doc := markdown.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Link:
			add(string(v.Destination))
		case *ast.AutoLink:
			add(string(v.URL(src)))
		}
		return ast.WalkContinue, nil
	})
	return out
}
