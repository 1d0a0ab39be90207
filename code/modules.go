package code

import (
	"fmt"
	"math"
	"strings"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/nevindra/memagent/memory"
)

// predeclared builds the globals every snippet starts with: the library
// modules, a few Python builtins the dialect lacks, and the primitives bound
// to sess.
func predeclared(sess *memory.Session) starlark.StringDict {
	prims := primitives(sess)
	dt := datetimeModule()
	env := starlark.StringDict{
		"json":     jsonModule(),
		"math":     starmath.Module,
		"time":     startime.Module,
		"datetime": dt,
		"re":       reModule(),
		"os":       &starlarkstruct.Module{Name: "os", Members: starlark.StringDict{"path": pathModule(sess)}},
		"sum":      starlark.NewBuiltin("sum", builtinSum),
		"round":    starlark.NewBuiltin("round", builtinRound),
		primitivesModule: &starlarkstruct.Module{
			Name:    primitivesModule,
			Members: prims,
		},
	}
	// "from datetime import datetime" rebinds the global datetime, so imports
	// read the module through a name the snippet cannot shadow.
	env[datetimeAlias] = dt
	for name, fn := range prims {
		env[name] = fn
	}
	return env
}

// jsonModule extends the dialect's json module with Python's dumps/loads.
func jsonModule() *starlarkstruct.Module {
	members := make(starlark.StringDict, len(starjson.Module.Members)+2)
	for k, v := range starjson.Module.Members {
		members[k] = v
	}
	encode := starjson.Module.Members["encode"]
	indent := starjson.Module.Members["indent"]
	decode := starjson.Module.Members["decode"]

	members["dumps"] = starlark.NewBuiltin("json.dumps", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var obj starlark.Value
		var width starlark.Value = starlark.None
		var ensureASCII, sortKeys starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"obj", &obj, "indent?", &width, "ensure_ascii?", &ensureASCII, "sort_keys?", &sortKeys); err != nil {
			return nil, err
		}
		out, err := starlark.Call(thread, encode, starlark.Tuple{obj}, nil)
		if err != nil {
			return nil, err
		}
		if width == starlark.None {
			return out, nil
		}
		n, err := starlark.AsInt32(width)
		if err != nil {
			return nil, fmt.Errorf("%s: indent must be an int", b.Name())
		}
		return starlark.Call(thread, indent, starlark.Tuple{out},
			[]starlark.Tuple{{starlark.String("indent"), starlark.String(strings.Repeat(" ", n))}})
	})
	members["loads"] = starlark.NewBuiltin("json.loads", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s starlark.String
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.Call(thread, decode, starlark.Tuple{s}, nil)
	})
	return &starlarkstruct.Module{Name: "json", Members: members}
}

// pathModule provides read-only os.path helpers. exists/isfile/isdir go
// through the session so they are subject to the same containment as the
// primitives.
func pathModule(sess *memory.Session) *starlarkstruct.Module {
	str1 := func(name string, fn func(string) starlark.Value) *starlark.Builtin {
		return starlark.NewBuiltin("os.path."+name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var p string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &p); err != nil {
				return nil, err
			}
			return fn(p), nil
		})
	}
	exists := func(check func(string) (bool, error)) func(string) starlark.Value {
		return func(p string) starlark.Value {
			ok, err := check(p)
			return starlark.Bool(err == nil && ok)
		}
	}

	return &starlarkstruct.Module{
		Name: "os.path",
		Members: starlark.StringDict{
			"join": starlark.NewBuiltin("os.path.join", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				if len(kwargs) > 0 {
					return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
				}
				parts := make([]string, len(args))
				for i, a := range args {
					s, ok := starlark.AsString(a)
					if !ok {
						return nil, fmt.Errorf("%s: argument %d is %s, want str", b.Name(), i+1, a.Type())
					}
					parts[i] = s
				}
				return starlark.String(joinPath(parts...)), nil
			}),
			"basename": str1("basename", func(p string) starlark.Value { _, base := splitPath(p); return starlark.String(base) }),
			"dirname":  str1("dirname", func(p string) starlark.Value { dir, _ := splitPath(p); return starlark.String(dir) }),
			"split": str1("split", func(p string) starlark.Value {
				dir, base := splitPath(p)
				return starlark.Tuple{starlark.String(dir), starlark.String(base)}
			}),
			"splitext": str1("splitext", func(p string) starlark.Value {
				root, ext := splitExt(p)
				return starlark.Tuple{starlark.String(root), starlark.String(ext)}
			}),
			"normpath": str1("normpath", func(p string) starlark.Value { return starlark.String(normPath(p)) }),
			"isabs":    str1("isabs", func(p string) starlark.Value { return starlark.Bool(strings.HasPrefix(p, "/")) }),
			"exists": str1("exists", func(p string) starlark.Value {
				f, _ := sess.FileExists(p)
				d, _ := sess.DirExists(p)
				return starlark.Bool(f || d)
			}),
			"isfile": str1("isfile", exists(sess.FileExists)),
			"isdir":  str1("isdir", exists(sess.DirExists)),
		},
	}
}

// joinPath follows os.path.join: an absolute component discards what came
// before it.
func joinPath(parts ...string) string {
	var out string
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, "/"):
			out = p
		case out == "" || strings.HasSuffix(out, "/"):
			out += p
		default:
			out += "/" + p
		}
	}
	return out
}

func splitPath(p string) (dir, base string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	dir, base = p[:i+1], p[i+1:]
	if trimmed := strings.TrimRight(dir, "/"); trimmed != "" {
		dir = trimmed
	}
	return dir, base
}

func splitExt(p string) (root, ext string) {
	_, base := splitPath(p)
	i := strings.LastIndex(base, ".")
	if i <= 0 || strings.Trim(base[:i], ".") == "" {
		return p, ""
	}
	cut := len(p) - len(base) + i
	return p[:cut], p[cut:]
}

func normPath(p string) string {
	if p == "" {
		return "."
	}
	abs := strings.HasPrefix(p, "/")
	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !abs {
				out = append(out, "..")
			}
		default:
			out = append(out, seg)
		}
	}
	s := strings.Join(out, "/")
	if abs {
		return "/" + s
	}
	if s == "" {
		return "."
	}
	return s
}

func builtinSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}
	it := iterable.Iterate()
	defer it.Done()
	total := start
	var x starlark.Value
	for it.Next(&x) {
		var err error
		total, err = starlark.Binary(syntax.PLUS, total, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", b.Name(), err)
		}
	}
	return total, nil
}

func builtinRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var digits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &digits); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want a number", b.Name(), x.Type())
	}
	if digits == starlark.None {
		if _, isInt := x.(starlark.Int); isInt {
			return x, nil
		}
		return starlark.MakeInt64(int64(math.RoundToEven(f))), nil
	}
	n, err := starlark.AsInt32(digits)
	if err != nil {
		return nil, fmt.Errorf("%s: ndigits must be an int", b.Name())
	}
	scale := math.Pow(10, float64(n))
	return starlark.Float(math.RoundToEven(f*scale) / scale), nil
}
