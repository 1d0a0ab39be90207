package memagent

import (
	"fmt"
	"strings"

	"github.com/nevindra/memagent/code"
)

// maxTracebackLines is how much of a failure's traceback the model sees.
const maxTracebackLines = 12

// FormatResult renders a snippet outcome as the <result> block that becomes
// the next user message. Captured variables come one per line as
// "name = <json>", followed by elided names, then stdout. A failure is
// rendered as "error: <kind>: <message>" with the tail of its traceback.
func FormatResult(res code.Result) string {
	var b strings.Builder
	b.WriteString("<" + TagResult + ">\n")

	if f := res.Failure; f != nil {
		fmt.Fprintf(&b, "error: %s: %s\n", f.Kind, f.Message)
		if tb := tracebackTail(f.Traceback, maxTracebackLines); tb != "" {
			b.WriteString("traceback:\n" + tb + "\n")
		}
	}
	for _, v := range res.Vars {
		fmt.Fprintf(&b, "%s = %s", v.Name, v.JSON)
		if v.Truncated {
			fmt.Fprintf(&b, " ... (truncated, %d bytes total)", v.Size)
		}
		b.WriteByte('\n')
	}
	for _, e := range res.Elided {
		fmt.Fprintf(&b, "%s: <elided: %s>\n", e.Name, e.Reason)
	}
	if res.Stdout != "" {
		b.WriteString("stdout:\n" + strings.TrimRight(res.Stdout, "\n") + "\n")
		if res.Truncated {
			b.WriteString("... (output truncated)\n")
		}
	}
	if res.Failure == nil && len(res.Vars) == 0 && len(res.Elided) == 0 && res.Stdout == "" {
		b.WriteString("(no variables or output)\n")
	}

	b.WriteString("</" + TagResult + ">")
	return b.String()
}

// IsResult reports whether a message content is a synthesized result block.
func IsResult(content string) bool {
	return strings.HasPrefix(content, "<"+TagResult+">")
}

// tracebackTail keeps the last n lines, which hold the failing call.
func tracebackTail(tb string, n int) string {
	tb = strings.TrimRight(tb, "\n")
	if tb == "" {
		return ""
	}
	lines := strings.Split(tb, "\n")
	if len(lines) <= n {
		return tb
	}
	return "...\n" + strings.Join(lines[len(lines)-n:], "\n")
}
