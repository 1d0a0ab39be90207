package code

import (
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Python re flag values.
const (
	reIgnoreCase = 2
	reMultiline  = 8
	reDotAll     = 16
)

// reModule is a Go regexp-backed subset of Python's re. Patterns use RE2
// syntax: no backreferences or lookaround.
func reModule() *starlarkstruct.Module {
	members := starlark.StringDict{
		"I":          starlark.MakeInt(reIgnoreCase),
		"IGNORECASE": starlark.MakeInt(reIgnoreCase),
		"M":          starlark.MakeInt(reMultiline),
		"MULTILINE":  starlark.MakeInt(reMultiline),
		"S":          starlark.MakeInt(reDotAll),
		"DOTALL":     starlark.MakeInt(reDotAll),
		"escape": starlark.NewBuiltin("re.escape", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			return starlark.String(regexp.QuoteMeta(s)), nil
		}),
		"compile": starlark.NewBuiltin("re.compile", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pattern string
			flags := 0
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern, "flags?", &flags); err != nil {
				return nil, err
			}
			re, err := compileRe(pattern, flags)
			if err != nil {
				return nil, fmt.Errorf("%s: %v", b.Name(), err)
			}
			return &rePattern{pattern: pattern, re: re}, nil
		}),
	}
	for _, name := range reFuncNames {
		members[name] = moduleReFunc(name)
	}
	return &starlarkstruct.Module{Name: "re", Members: members}
}

var reFuncNames = []string{"search", "match", "fullmatch", "findall", "finditer", "sub", "split"}

// reFlagsPos is the position of the optional flags argument in the module
// level form, e.g. re.search(pattern, string, flags).
var reFlagsPos = map[string]int{
	"search": 2, "match": 2, "fullmatch": 2, "findall": 2, "finditer": 2,
	"split": 3, "sub": 4,
}

// moduleReFunc builds re.<name>(pattern, ...) on top of the pattern method.
func moduleReFunc(name string) *starlark.Builtin {
	return starlark.NewBuiltin("re."+name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing pattern argument", b.Name())
		}
		pattern, ok := starlark.AsString(args[0])
		if !ok {
			if p, isPattern := args[0].(*rePattern); isPattern {
				return p.call(thread, name, args[1:], kwargs)
			}
			return nil, fmt.Errorf("%s: pattern must be a string, got %s", b.Name(), args[0].Type())
		}
		flags := 0
		rest := args[1:]
		if i := reFlagsPos[name]; len(args) > i {
			n, err := starlark.AsInt32(args[i])
			if err != nil {
				return nil, fmt.Errorf("%s: flags must be an int", b.Name())
			}
			flags = n
			rest = args[1:i]
		}
		var restKw []starlark.Tuple
		for _, kv := range kwargs {
			if k, _ := starlark.AsString(kv[0]); k == "flags" {
				n, err := starlark.AsInt32(kv[1])
				if err != nil {
					return nil, fmt.Errorf("%s: flags must be an int", b.Name())
				}
				flags = n
				continue
			}
			restKw = append(restKw, kv)
		}
		re, err := compileRe(pattern, flags)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
		return (&rePattern{pattern: pattern, re: re}).call(thread, name, rest, restKw)
	})
}

func compileRe(pattern string, flags int) (*regexp.Regexp, error) {
	var prefix string
	if flags&reIgnoreCase != 0 {
		prefix += "i"
	}
	if flags&reMultiline != 0 {
		prefix += "m"
	}
	if flags&reDotAll != 0 {
		prefix += "s"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	return regexp.Compile(pattern)
}

// rePattern is a compiled pattern, as returned by re.compile.
type rePattern struct {
	pattern string
	re      *regexp.Regexp
}

var (
	_ starlark.Value    = (*rePattern)(nil)
	_ starlark.HasAttrs = (*rePattern)(nil)
)

func (p *rePattern) String() string        { return fmt.Sprintf("re.compile(%q)", p.pattern) }
func (p *rePattern) Type() string          { return "re.Pattern" }
func (p *rePattern) Freeze()               {}
func (p *rePattern) Truth() starlark.Bool  { return true }
func (p *rePattern) Hash() (uint32, error) { return starlark.String(p.pattern).Hash() }
func (p *rePattern) AttrNames() []string   { return append([]string{"pattern"}, reFuncNames...) }

func (p *rePattern) Attr(name string) (starlark.Value, error) {
	if name == "pattern" {
		return starlark.String(p.pattern), nil
	}
	for _, fn := range reFuncNames {
		if fn == name {
			return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				return p.call(thread, name, args, kwargs)
			}).BindReceiver(p), nil
		}
	}
	return nil, nil
}

// anchored returns the pattern pinned to the start of the input, and to its
// end when full is set.
func (p *rePattern) anchored(full bool) (*regexp.Regexp, error) {
	expr := `\A(?:` + p.re.String() + `)`
	if full {
		expr += `\z`
	}
	return regexp.Compile(expr)
}

func (p *rePattern) call(_ *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	fname := "re." + name
	switch name {
	case "search", "match", "fullmatch":
		var s string
		if err := starlark.UnpackArgs(fname, args, kwargs, "string", &s); err != nil {
			return nil, err
		}
		re := p.re
		if name != "search" {
			var err error
			if re, err = p.anchored(name == "fullmatch"); err != nil {
				return nil, fmt.Errorf("%s: %v", fname, err)
			}
		}
		loc := re.FindStringSubmatchIndex(s)
		if loc == nil {
			return starlark.None, nil
		}
		return newReMatch(s, loc, re.SubexpNames()), nil

	case "findall":
		var s string
		if err := starlark.UnpackArgs(fname, args, kwargs, "string", &s); err != nil {
			return nil, err
		}
		var out []starlark.Value
		for _, loc := range p.re.FindAllStringSubmatchIndex(s, -1) {
			m := newReMatch(s, loc, p.re.SubexpNames())
			switch n := p.re.NumSubexp(); n {
			case 0:
				out = append(out, m.group(0))
			case 1:
				out = append(out, m.groupOrEmpty(1))
			default:
				tup := make(starlark.Tuple, n)
				for i := range tup {
					tup[i] = m.groupOrEmpty(i + 1)
				}
				out = append(out, tup)
			}
		}
		return starlark.NewList(out), nil

	case "finditer":
		var s string
		if err := starlark.UnpackArgs(fname, args, kwargs, "string", &s); err != nil {
			return nil, err
		}
		var out []starlark.Value
		for _, loc := range p.re.FindAllStringSubmatchIndex(s, -1) {
			out = append(out, newReMatch(s, loc, p.re.SubexpNames()))
		}
		return starlark.NewList(out), nil

	case "sub":
		var repl, s string
		count := 0
		if err := starlark.UnpackArgs(fname, args, kwargs, "repl", &repl, "string", &s, "count?", &count); err != nil {
			return nil, err
		}
		template := pythonTemplate(repl)
		var out []byte
		last := 0
		for n, loc := range p.re.FindAllStringSubmatchIndex(s, -1) {
			if count > 0 && n >= count {
				break
			}
			out = append(out, s[last:loc[0]]...)
			out = p.re.ExpandString(out, template, s, loc)
			last = loc[1]
		}
		out = append(out, s[last:]...)
		return starlark.String(out), nil

	case "split":
		var s string
		maxsplit := 0
		if err := starlark.UnpackArgs(fname, args, kwargs, "string", &s, "maxsplit?", &maxsplit); err != nil {
			return nil, err
		}
		limit := -1
		if maxsplit > 0 {
			limit = maxsplit + 1
		}
		parts := p.re.Split(s, limit)
		out := make([]starlark.Value, len(parts))
		for i, part := range parts {
			out[i] = starlark.String(part)
		}
		return starlark.NewList(out), nil
	}
	return nil, fmt.Errorf("%s: not supported", fname)
}

// pythonTemplate converts \1 and \g<name> references to Go's ${1}/${name}
// and escapes literal dollars.
func pythonTemplate(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9':
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
		case c == '\\' && strings.HasPrefix(repl[i:], `\g<`):
			end := strings.IndexByte(repl[i:], '>')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteString("${" + repl[i+3:i+end] + "}")
			i += end
		case c == '\\' && i+1 < len(repl) && repl[i+1] == 'n':
			b.WriteByte('\n')
			i++
		case c == '\\' && i+1 < len(repl) && repl[i+1] == '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// reMatch mirrors Python's re.Match.
type reMatch struct {
	s     string
	loc   []int
	names []string
}

var (
	_ starlark.Value    = (*reMatch)(nil)
	_ starlark.HasAttrs = (*reMatch)(nil)
)

func newReMatch(s string, loc []int, names []string) *reMatch {
	return &reMatch{s: s, loc: loc, names: names}
}

func (m *reMatch) String() string {
	return fmt.Sprintf("<re.Match object; span=(%d, %d), match=%q>", m.loc[0], m.loc[1], m.s[m.loc[0]:m.loc[1]])
}
func (m *reMatch) Type() string          { return "re.Match" }
func (m *reMatch) Freeze()               {}
func (m *reMatch) Truth() starlark.Bool  { return true }
func (m *reMatch) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: re.Match") }
func (m *reMatch) AttrNames() []string {
	return []string{"end", "group", "groupdict", "groups", "span", "start", "string"}
}

func (m *reMatch) group(i int) starlark.Value {
	if i < 0 || 2*i+1 >= len(m.loc) || m.loc[2*i] < 0 {
		return starlark.None
	}
	return starlark.String(m.s[m.loc[2*i]:m.loc[2*i+1]])
}

func (m *reMatch) groupOrEmpty(i int) starlark.Value {
	if v := m.group(i); v != starlark.None {
		return v
	}
	return starlark.String("")
}

func (m *reMatch) index(v starlark.Value) (int, error) {
	if name, ok := starlark.AsString(v); ok {
		for i, n := range m.names {
			if n == name && n != "" {
				return i, nil
			}
		}
		return 0, fmt.Errorf("no such group: %q", name)
	}
	i, err := starlark.AsInt32(v)
	if err != nil {
		return 0, err
	}
	if i < 0 || 2*i+1 >= len(m.loc) {
		return 0, fmt.Errorf("no such group: %d", i)
	}
	return i, nil
}

func (m *reMatch) Attr(name string) (starlark.Value, error) {
	method := func(fn func(args starlark.Tuple) (starlark.Value, error)) starlark.Value {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(kwargs) > 0 {
				return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
			}
			v, err := fn(args)
			if err != nil {
				return nil, fmt.Errorf("%s: %v", b.Name(), err)
			}
			return v, nil
		}).BindReceiver(m)
	}
	groupArg := func(args starlark.Tuple) (int, error) {
		if len(args) == 0 {
			return 0, nil
		}
		return m.index(args[0])
	}

	switch name {
	case "string":
		return starlark.String(m.s), nil
	case "group":
		return method(func(args starlark.Tuple) (starlark.Value, error) {
			if len(args) <= 1 {
				i, err := groupArg(args)
				if err != nil {
					return nil, err
				}
				return m.group(i), nil
			}
			out := make(starlark.Tuple, len(args))
			for j, a := range args {
				i, err := m.index(a)
				if err != nil {
					return nil, err
				}
				out[j] = m.group(i)
			}
			return out, nil
		}), nil
	case "groups":
		return method(func(starlark.Tuple) (starlark.Value, error) {
			out := make(starlark.Tuple, len(m.loc)/2-1)
			for i := range out {
				out[i] = m.group(i + 1)
			}
			return out, nil
		}), nil
	case "groupdict":
		return method(func(starlark.Tuple) (starlark.Value, error) {
			d := starlark.NewDict(len(m.names))
			for i, n := range m.names {
				if n != "" {
					if err := d.SetKey(starlark.String(n), m.group(i)); err != nil {
						return nil, err
					}
				}
			}
			return d, nil
		}), nil
	case "start", "end", "span":
		return method(func(args starlark.Tuple) (starlark.Value, error) {
			i, err := groupArg(args)
			if err != nil {
				return nil, err
			}
			start, end := m.loc[2*i], m.loc[2*i+1]
			switch name {
			case "start":
				return starlark.MakeInt(start), nil
			case "end":
				return starlark.MakeInt(end), nil
			}
			return starlark.Tuple{starlark.MakeInt(start), starlark.MakeInt(end)}, nil
		}), nil
	}
	return nil, nil
}
