package code

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/memagent/memory"
)

func newPythonRunner(t *testing.T, opts ...Option) *SubprocessRunner {
	t.Helper()
	bin, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return NewSubprocessRunner(bin, opts...)
}

func runPython(t *testing.T, r *SubprocessRunner, sess *memory.Session, src string) Result {
	t.Helper()
	res, err := r.Run(context.Background(), Request{Code: src, Session: sess})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestSubprocessRunner_Primitives(t *testing.T) {
	r := newPythonRunner(t)
	sess := newTestSession(t)
	res := runPython(t, r, sess, `
create_dir("entities")
create_file("entities/mittens.md", "# Mittens\nMittens is a cat.\n")
update_file("entities/mittens.md", "a cat", "a grey cat")
content = read_file("entities/mittens.md")
facts = {"name": "Mittens", "age": 3}
print("saved", len(content))
`)
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if got := varJSON(t, res, "content"); got != `"# Mittens\nMittens is a grey cat.\n"` {
		t.Errorf("content = %s", got)
	}
	if got := varJSON(t, res, "facts"); got != `{"name":"Mittens","age":3}` {
		t.Errorf("facts = %s", got)
	}
	if !strings.HasPrefix(res.Stdout, "saved ") {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if got, _ := sess.ReadFile("entities/mittens.md"); !strings.Contains(got, "grey cat") {
		t.Errorf("file = %q", got)
	}
}

func TestSubprocessRunner_PrimitiveErrorKeepsKind(t *testing.T) {
	r := newPythonRunner(t)
	res := runPython(t, r, newTestSession(t), `read_file("../../etc/passwd")`)
	if res.Failure == nil || res.Failure.Kind != string(memory.KindScope) {
		t.Fatalf("failure = %+v", res.Failure)
	}
	if !strings.Contains(res.Failure.Traceback, "snippet.py") {
		t.Errorf("traceback = %q", res.Failure.Traceback)
	}
}

func TestSubprocessRunner_CaughtPrimitiveError(t *testing.T) {
	r := newPythonRunner(t)
	res := runPython(t, r, newTestSession(t), `
try:
    read_file("missing.md")
    found = True
except PrimitiveError as e:
    found = False
    kind = e.kind
`)
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if varJSON(t, res, "found") != "false" || varJSON(t, res, "kind") != `"not_found"` {
		t.Errorf("vars = %+v", res.Vars)
	}
}

func TestSubprocessRunner_BlockedImportAndBuiltins(t *testing.T) {
	r := newPythonRunner(t)
	for _, src := range []string{
		"import subprocess",
		"import os\nos.system('true')",
		"open('/etc/passwd').read()",
	} {
		res := runPython(t, r, newTestSession(t), src)
		if res.Failure == nil || res.Failure.Kind != KindException {
			t.Errorf("%q: failure = %+v", src, res.Failure)
		}
	}
}

func TestSubprocessRunner_Timeout(t *testing.T) {
	r := newPythonRunner(t, WithTimeout(time.Second))
	res := runPython(t, r, newTestSession(t), "while True:\n    pass\n")
	if res.Failure == nil || res.Failure.Kind != KindTimeout {
		t.Fatalf("failure = %+v", res.Failure)
	}
}

func TestSubprocessRunner_Elided(t *testing.T) {
	r := newPythonRunner(t)
	res := runPython(t, r, newTestSession(t), "s = {1, 2}\nn = 1\n")
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if len(res.Elided) != 1 || res.Elided[0].Name != "s" {
		t.Errorf("elided = %+v", res.Elided)
	}
	if varJSON(t, res, "n") != "1" {
		t.Errorf("vars = %+v", res.Vars)
	}
}
