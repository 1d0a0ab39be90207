package code

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const maxDepth = 64

// captureGlobals converts a finished snippet's globals into Vars and Elided
// entries. Private names (leading underscore), functions and modules are
// skipped.
func captureGlobals(globals starlark.StringDict, maxLen int) ([]Var, []Elided) {
	var vars []Var
	var elided []Elided
	for _, name := range globals.Keys() {
		if strings.HasPrefix(name, "_") || !capturable(globals[name]) {
			continue
		}
		v, err := toJSON(globals[name], 0)
		if err != nil {
			elided = append(elided, Elided{Name: name, Reason: err.Error()})
			continue
		}
		data, err := marshalJSON(v)
		if err != nil {
			elided = append(elided, Elided{Name: name, Reason: err.Error()})
			continue
		}
		vars = append(vars, newVar(name, data, maxLen))
	}
	return vars, elided
}

func capturable(v starlark.Value) bool {
	switch v.(type) {
	case starlark.Callable, *starlarkstruct.Module, *starlarkstruct.Struct:
		return false
	}
	return true
}

func newVar(name string, data []byte, maxLen int) Var {
	v := Var{Name: name, JSON: string(data), Size: len(data)}
	if maxLen > 0 && len(data) > maxLen {
		v.JSON = truncateUTF8(v.JSON, maxLen)
		v.Truncated = true
	}
	return v
}

// toJSON maps a Starlark value onto a value encoding/json understands. Dicts
// keep insertion order. Anything Python's json module would reject is an
// error naming the offending type.
func toJSON(v starlark.Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value is nested more than %d levels deep", maxDepth)
	}
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return json.Number(v.String()), nil
	case starlark.Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("float %s is not JSON-serializable", v.String())
		}
		return f, nil
	case starlark.String:
		return string(v), nil
	case *starlark.List:
		out := make([]any, v.Len())
		for i := range out {
			x, err := toJSON(v.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, len(v))
		for i, e := range v {
			x, err := toJSON(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case *starlark.Dict:
		obj := make(orderedObject, 0, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key of type %s is not JSON-serializable", item[0].Type())
			}
			x, err := toJSON(item[1], depth+1)
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{key: string(k), value: x})
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%s is not JSON-serializable", v.Type())
	}
}

type member struct {
	key   string
	value any
}

// orderedObject is a JSON object that keeps its members in insertion order.
type orderedObject []member

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalJSON(m.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		val, err := marshalJSON(m.value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalJSON encodes without HTML escaping so Markdown and angle brackets
// read back as written.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// fromJSON maps a decoded JSON value (as produced by encoding/json with
// UseNumber) onto a Starlark value.
func fromJSON(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case string:
		return starlark.String(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			x, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			elems[i] = x
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, e := range v {
			x, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), x); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", v)
	}
}
