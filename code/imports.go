package code

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Module names a snippet may import, mapped to the predeclared expression
// that provides them. The primitives are reachable as a module too.
var importable = map[string]string{
	"json":            "json",
	"math":            "math",
	"re":              "re",
	"time":            "time",
	"datetime":        datetimeAlias,
	"os":              "os",
	"os.path":         "os.path",
	"memory":          primitivesModule,
	"tools":           primitivesModule,
	"__future__":      "",
	"typing":          "",
	"collections.abc": "",
}

const (
	primitivesModule = "memory"
	datetimeAlias    = "_datetime"
)

var (
	importStmt = regexp.MustCompile(`^(\s*)import\s+(.+?)\s*(?:#.*)?$`)
	fromStmt   = regexp.MustCompile(`^(\s*)from\s+([\w.]+)\s+import\s+(.+?)\s*(?:#.*)?$`)
	identifier = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// ImportError reports an import of a module the sandbox does not provide.
type ImportError struct {
	Module string
	Line   int
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("ImportError: no module named '%s' (line %d); available: %s",
		e.Module, e.Line, strings.Join(availableModules(), ", "))
}

func availableModules() []string {
	var out []string
	for name, expr := range importable {
		if expr != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// rewriteImports replaces import statements of provided modules with
// equivalent bindings (or pass) so the dialect, which has no import
// statement, can run them. Line numbers are preserved.
func rewriteImports(src string) (string, error) {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		var (
			out string
			err error
			ok  bool
		)
		if m := fromStmt.FindStringSubmatch(line); m != nil {
			out, err = rewriteFrom(m[1], m[2], m[3], i+1)
			ok = true
		} else if m := importStmt.FindStringSubmatch(line); m != nil {
			out, err = rewriteImport(m[1], m[2], i+1)
			ok = true
		}
		if err != nil {
			return "", err
		}
		if ok {
			lines[i] = out
		}
	}
	return strings.Join(lines, "\n"), nil
}

func rewriteImport(indent, names string, line int) (string, error) {
	var binds []string
	for _, part := range strings.Split(names, ",") {
		mod, alias := splitAlias(part)
		expr, ok := importable[mod]
		if !ok {
			return "", &ImportError{Module: mod, Line: line}
		}
		if alias == "" && !strings.Contains(mod, ".") && mod != expr {
			alias = mod
		}
		if expr == "" || alias == "" {
			continue
		}
		binds = append(binds, alias+" = "+expr)
	}
	return statement(indent, binds), nil
}

func rewriteFrom(indent, mod, names string, line int) (string, error) {
	expr, ok := importable[mod]
	if !ok {
		return "", &ImportError{Module: mod, Line: line}
	}
	names = strings.TrimSpace(strings.Trim(strings.TrimSpace(names), "()"))
	if expr == "" || (names == "*" && expr == primitivesModule) {
		return statement(indent, nil), nil
	}
	if names == "*" {
		return "", fmt.Errorf("ImportError: wildcard import from '%s' is not supported (line %d); use %s.name", mod, line, mod)
	}
	var binds []string
	for _, part := range strings.Split(names, ",") {
		name, alias := splitAlias(part)
		if name == "" {
			continue
		}
		if alias == "" {
			alias = name
		}
		if expr == primitivesModule && alias == name {
			// Primitives are already predeclared under their own names.
			continue
		}
		binds = append(binds, alias+" = "+expr+"."+name)
	}
	return statement(indent, binds), nil
}

// splitAlias parses "mod as alias". For a plain dotted import the binding is
// the first segment, which is predeclared, so alias is empty.
func splitAlias(part string) (name, alias string) {
	fields := strings.Fields(part)
	switch {
	case len(fields) == 3 && fields[1] == "as" && identifier.MatchString(fields[2]):
		return fields[0], fields[2]
	case len(fields) == 1:
		return fields[0], ""
	default:
		return strings.TrimSpace(part), ""
	}
}

func statement(indent string, binds []string) string {
	if len(binds) == 0 {
		return indent + "pass"
	}
	return indent + strings.Join(binds, "; ")
}
