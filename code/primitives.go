package code

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/nevindra/memagent/memory"
)

// PrimitiveNames lists the memory operations bound into every snippet.
var PrimitiveNames = []string{
	"list_files", "read_file", "create_file", "update_file", "delete_file",
	"create_dir", "delete_dir", "go_to_dir", "get_current_dir",
	"move_file", "file_exists", "dir_exists", "get_size", "go_to_link", "list_links",
}

// primitives binds the memory operations of sess as Starlark builtins. A
// failing operation returns its *memory.Error, which surfaces as an uncaught
// error carrying that error's kind.
func primitives(sess *memory.Session) starlark.StringDict {
	type fn = func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)
	bind := func(name string, f fn) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return f(b, args, kwargs)
		})
	}
	oneName := func(op func(string) (starlark.Value, error)) fn {
		return func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
				return nil, err
			}
			return op(name)
		}
	}
	done := func(err error) (starlark.Value, error) {
		if err != nil {
			return nil, err
		}
		return starlark.True, nil
	}

	return starlark.StringDict{
		"list_files": bind("list_files", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			names, err := sess.ListFiles()
			if err != nil {
				return nil, err
			}
			return stringList(names), nil
		}),
		"read_file": bind("read_file", oneName(func(name string) (starlark.Value, error) {
			s, err := sess.ReadFile(name)
			if err != nil {
				return nil, err
			}
			return starlark.String(s), nil
		})),
		"create_file": bind("create_file", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name, content string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "content?", &content); err != nil {
				return nil, err
			}
			return done(sess.CreateFile(name, content))
		}),
		"update_file": bind("update_file", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			u, err := unpackUpdate(b.Name(), args, kwargs)
			if err != nil {
				return nil, err
			}
			if u.replace {
				return done(sess.ReplaceInFile(u.name, u.old, u.new))
			}
			return done(sess.UpdateFile(u.name, u.content))
		}),
		"delete_file": bind("delete_file", oneName(func(name string) (starlark.Value, error) {
			return done(sess.DeleteFile(name))
		})),
		"create_dir": bind("create_dir", oneName(func(name string) (starlark.Value, error) {
			return done(sess.CreateDir(name))
		})),
		"delete_dir": bind("delete_dir", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			var recursive bool
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "recursive?", &recursive); err != nil {
				return nil, err
			}
			return done(sess.DeleteDir(name, recursive))
		}),
		"go_to_dir": bind("go_to_dir", oneName(func(name string) (starlark.Value, error) {
			dir, err := sess.GoToDir(name)
			if err != nil {
				return nil, err
			}
			return starlark.String(dir), nil
		})),
		"get_current_dir": bind("get_current_dir", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return starlark.String(sess.CurrentDir()), nil
		}),
		"move_file": bind("move_file", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var src, dst string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "src", &src, "dst", &dst); err != nil {
				return nil, err
			}
			return done(sess.MoveFile(src, dst))
		}),
		"file_exists": bind("file_exists", oneName(func(name string) (starlark.Value, error) {
			ok, err := sess.FileExists(name)
			return starlark.Bool(ok), err
		})),
		"dir_exists": bind("dir_exists", oneName(func(name string) (starlark.Value, error) {
			ok, err := sess.DirExists(name)
			return starlark.Bool(ok), err
		})),
		"get_size": bind("get_size", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name?", &name); err != nil {
				return nil, err
			}
			n, err := sess.Size(name)
			if err != nil {
				return nil, err
			}
			return starlark.MakeInt64(n), nil
		}),
		"go_to_link": bind("go_to_link", func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var link string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "link", &link); err != nil {
				return nil, err
			}
			s, err := sess.GoToLink(link)
			if err != nil {
				return nil, err
			}
			return starlark.String(s), nil
		}),
		"list_links": bind("list_links", oneName(func(name string) (starlark.Value, error) {
			links, err := sess.ListLinks(name)
			if err != nil {
				return nil, err
			}
			return stringList(links), nil
		})),
	}
}

type updateArgs struct {
	name     string
	content  string
	old, new string
	replace  bool
}

// unpackUpdate accepts update_file(name, content) for a full rewrite and
// update_file(name, old, new) for a single replacement, positionally or by
// keyword (content=, old=/old_content=, new=/new_content=).
func unpackUpdate(fname string, args starlark.Tuple, kwargs []starlark.Tuple) (updateArgs, error) {
	var u updateArgs
	vals := map[string]string{}
	positional := []string{"name", "second", "third"}
	if len(args) > len(positional) {
		return u, fmt.Errorf("%s: got %d arguments, want at most 3", fname, len(args))
	}
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return u, fmt.Errorf("%s: argument %d is %s, want str", fname, i+1, a.Type())
		}
		vals[positional[i]] = s
	}
	aliases := map[string]string{
		"name": "name", "file_path": "name", "path": "name",
		"content": "content", "new_content": "new", "new": "new",
		"old": "old", "old_content": "old",
	}
	for _, kv := range kwargs {
		k, _ := starlark.AsString(kv[0])
		key, ok := aliases[k]
		if !ok {
			return u, fmt.Errorf("%s: unexpected keyword argument %s", fname, k)
		}
		s, ok := starlark.AsString(kv[1])
		if !ok {
			return u, fmt.Errorf("%s: %s is %s, want str", fname, k, kv[1].Type())
		}
		vals[key] = s
	}

	name, ok := vals["name"]
	if !ok {
		return u, fmt.Errorf("%s: missing argument name", fname)
	}
	u.name = name

	second, hasSecond := vals["second"]
	third, hasThird := vals["third"]
	old, hasOld := vals["old"]
	repl, hasNew := vals["new"]
	content, hasContent := vals["content"]
	switch {
	case hasThird:
		u.old, u.new, u.replace = second, third, true
	case hasOld || (hasSecond && hasNew):
		if !hasOld {
			old = second
		}
		u.old, u.new, u.replace = old, repl, true
	case hasContent:
		u.content = content
	case hasSecond:
		u.content = second
	default:
		return u, fmt.Errorf("%s: pass either content or old and new", fname)
	}
	return u, nil
}

func stringList(ss []string) *starlark.List {
	out := make([]starlark.Value, len(ss))
	for i, s := range ss {
		out[i] = starlark.String(s)
	}
	return starlark.NewList(out)
}
