package memagent

import (
	"strings"
)

// Sentinel tags of the in-band protocol. They must match the system prompt.
const (
	TagThink  = "think"
	TagPython = "python"
	TagReply  = "reply"
	TagResult = "result"
)

// Turn is an assistant message split into its tagged regions.
type Turn struct {
	Thoughts string
	Python   string
	Reply    string
	// HasReply reports a closed reply region, even an empty one. It alone
	// makes a turn final.
	HasReply bool
	// Unclosed names the regions that were opened but never closed; their
	// payload is empty.
	Unclosed []string
}

// Malformed reports a turn that is unusable as written: a region was left
// unclosed, or the turn has neither a python nor a reply region.
func (t Turn) Malformed() bool {
	return len(t.Unclosed) > 0 || (t.Python == "" && !t.HasReply)
}

// ParseTurn extracts the think, python and reply regions from raw assistant
// text. Regions may appear in any order. For each tag the first opening tag
// wins and is paired with the next closing tag of the same name; anything
// between regions is ignored. Thoughts and reply are trimmed; the python
// payload loses surrounding blank lines and its common indentation.
func ParseTurn(text string) Turn {
	var t Turn
	region := func(tag string) (string, bool) {
		payload, ok, opened := between(text, tag)
		if opened && !ok {
			t.Unclosed = append(t.Unclosed, tag)
		}
		return payload, ok
	}
	thoughts, _ := region(TagThink)
	python, _ := region(TagPython)
	reply, hasReply := region(TagReply)
	t.Thoughts = strings.TrimSpace(thoughts)
	t.Python = dedent(python)
	t.Reply, t.HasReply = strings.TrimSpace(reply), hasReply
	return t
}

// between returns the text between the first <tag> and the following </tag>.
// opened reports whether the opening tag was present at all.
func between(text, tag string) (payload string, ok, opened bool) {
	open, closing := "<"+tag+">", "</"+tag+">"
	i := strings.Index(text, open)
	if i < 0 {
		return "", false, false
	}
	rest := text[i+len(open):]
	j := strings.Index(rest, closing)
	if j < 0 {
		return "", false, true
	}
	return rest[:j], true, true
}

// dedent strips leading and trailing blank lines and removes the
// indentation shared by every non-blank line.
func dedent(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, l := range lines {
		lines[i] = strings.TrimRight(strings.TrimPrefix(l, prefix), " \t")
	}
	return strings.Join(lines, "\n")
}

// Region wraps payload in the opening and closing tag.
func Region(tag, payload string) string {
	return "<" + tag + ">" + payload + "</" + tag + ">"
}
