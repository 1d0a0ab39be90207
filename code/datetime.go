package code

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// datetimeModule is the subset of Python's datetime the prompt promises:
// datetime and date classes with now/today, fromisoformat and strptime,
// values with isoformat/strftime, and timedelta arithmetic. Values are naive
// local times. timedelta is a time.duration from the time module.
func datetimeModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "datetime",
		Members: starlark.StringDict{
			"datetime":  &dateClass{name: "datetime"},
			"date":      &dateClass{name: "date", dateOnly: true},
			"timedelta": starlark.NewBuiltin("timedelta", builtinTimedelta),
		},
	}
}

// dateClass is the callable datetime.datetime or datetime.date.
type dateClass struct {
	name     string
	dateOnly bool
}

var (
	_ starlark.Callable = (*dateClass)(nil)
	_ starlark.HasAttrs = (*dateClass)(nil)
)

func (c *dateClass) String() string        { return "<class '" + c.name + "'>" }
func (c *dateClass) Type() string          { return "type" }
func (c *dateClass) Freeze()               {}
func (c *dateClass) Truth() starlark.Bool  { return starlark.True }
func (c *dateClass) Hash() (uint32, error) { return starlark.String(c.name).Hash() }
func (c *dateClass) Name() string          { return c.name }

// CallInternal constructs a value: date(y, m, d) or
// datetime(y, m, d, hour=0, minute=0, second=0, microsecond=0).
func (c *dateClass) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var year, month, day, hour, minute, second, micro int
	var err error
	if c.dateOnly {
		err = starlark.UnpackArgs(c.name, args, kwargs, "year", &year, "month", &month, "day", &day)
	} else {
		err = starlark.UnpackArgs(c.name, args, kwargs, "year", &year, "month", &month, "day", &day,
			"hour?", &hour, "minute?", &minute, "second?", &second, "microsecond?", &micro)
	}
	if err != nil {
		return nil, err
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, micro*1000, time.Local)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day || t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return nil, fmt.Errorf("ValueError: %s(%d, %d, %d, ...) is out of range", c.name, year, month, day)
	}
	return dateValue{t: t, dateOnly: c.dateOnly}, nil
}

func (c *dateClass) Attr(name string) (starlark.Value, error) {
	switch name {
	case "today":
		return starlark.NewBuiltin(c.name+".today", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			t, err := clock(thread)
			if err != nil {
				return nil, err
			}
			return newDateValue(t, c.dateOnly), nil
		}), nil
	case "now", "utcnow":
		if c.dateOnly {
			return nil, nil
		}
		return starlark.NewBuiltin(c.name+"."+name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			t, err := clock(thread)
			if err != nil {
				return nil, err
			}
			if name == "utcnow" {
				t = t.UTC()
			}
			return newDateValue(t, false), nil
		}), nil
	case "fromisoformat":
		return starlark.NewBuiltin(c.name+".fromisoformat", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			t, err := parseISO(s)
			if err != nil {
				return nil, err
			}
			return newDateValue(t, c.dateOnly), nil
		}), nil
	case "strptime":
		if c.dateOnly {
			return nil, nil
		}
		return starlark.NewBuiltin(c.name+".strptime", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s, format string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &s, &format); err != nil {
				return nil, err
			}
			layout, err := goLayout(format)
			if err != nil {
				return nil, err
			}
			t, err := time.ParseInLocation(layout, s, time.Local)
			if err != nil {
				return nil, fmt.Errorf("ValueError: time data %q does not match format %q", s, format)
			}
			return newDateValue(t, false), nil
		}), nil
	}
	return nil, nil
}

func (c *dateClass) AttrNames() []string {
	if c.dateOnly {
		return []string{"fromisoformat", "today"}
	}
	return []string{"fromisoformat", "now", "strptime", "today", "utcnow"}
}

// clock reads the thread's clock the way the time module does.
func clock(thread *starlark.Thread) (time.Time, error) {
	if now := startime.Now(thread); now != nil {
		return now()
	}
	if startime.NowFunc == nil {
		return time.Time{}, fmt.Errorf("datetime: clock is not available")
	}
	return startime.NowFunc(), nil
}

func newDateValue(t time.Time, dateOnly bool) dateValue {
	if dateOnly {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	return dateValue{t: t, dateOnly: dateOnly}
}

// dateValue is a datetime or date instance.
type dateValue struct {
	t        time.Time
	dateOnly bool
}

var (
	_ starlark.HasAttrs       = dateValue{}
	_ starlark.HasBinary      = dateValue{}
	_ starlark.TotallyOrdered = dateValue{}
)

func (d dateValue) String() string {
	if d.dateOnly {
		return d.t.Format("2006-01-02")
	}
	return d.t.Format("2006-01-02 15:04:05") + micros(d.t)
}

func (d dateValue) Type() string {
	if d.dateOnly {
		return "date"
	}
	return "datetime"
}

func (d dateValue) Freeze()              {}
func (d dateValue) Truth() starlark.Bool { return starlark.True }

func (d dateValue) Hash() (uint32, error) {
	return starlark.MakeInt64(d.t.UnixNano()).Hash()
}

func (d dateValue) Cmp(y starlark.Value, _ int) (int, error) {
	o := y.(dateValue)
	if d.dateOnly != o.dateOnly {
		return 0, fmt.Errorf("TypeError: can't compare %s to %s", d.Type(), o.Type())
	}
	return d.t.Compare(o.t), nil
}

// Binary supports value ± timedelta and value - value.
func (d dateValue) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch y := y.(type) {
	case startime.Duration:
		switch {
		case op == syntax.PLUS:
			return newDateValue(d.t.Add(time.Duration(y)), d.dateOnly), nil
		case op == syntax.MINUS && side == starlark.Left:
			return newDateValue(d.t.Add(-time.Duration(y)), d.dateOnly), nil
		}
	case dateValue:
		if op == syntax.MINUS && y.dateOnly == d.dateOnly {
			if side == starlark.Left {
				return startime.Duration(d.t.Sub(y.t)), nil
			}
			return startime.Duration(y.t.Sub(d.t)), nil
		}
	}
	return nil, nil
}

func (d dateValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "year":
		return starlark.MakeInt(d.t.Year()), nil
	case "month":
		return starlark.MakeInt(int(d.t.Month())), nil
	case "day":
		return starlark.MakeInt(d.t.Day()), nil
	case "isoformat":
		return d.method(name, func() starlark.Value { return starlark.String(d.isoformat()) }), nil
	case "weekday":
		return d.method(name, func() starlark.Value { return starlark.MakeInt((int(d.t.Weekday()) + 6) % 7) }), nil
	case "isoweekday":
		return d.method(name, func() starlark.Value { return starlark.MakeInt((int(d.t.Weekday())+6)%7 + 1) }), nil
	case "strftime":
		return starlark.NewBuiltin(d.Type()+".strftime", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var format string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &format); err != nil {
				return nil, err
			}
			s, err := strftime(d.t, format)
			if err != nil {
				return nil, err
			}
			return starlark.String(s), nil
		}), nil
	}
	if d.dateOnly {
		return nil, nil
	}
	switch name {
	case "hour":
		return starlark.MakeInt(d.t.Hour()), nil
	case "minute":
		return starlark.MakeInt(d.t.Minute()), nil
	case "second":
		return starlark.MakeInt(d.t.Second()), nil
	case "microsecond":
		return starlark.MakeInt(d.t.Nanosecond() / 1000), nil
	case "date":
		return d.method(name, func() starlark.Value { return newDateValue(d.t, true) }), nil
	case "timestamp":
		return d.method(name, func() starlark.Value { return starlark.Float(float64(d.t.UnixNano()) / 1e9) }), nil
	}
	return nil, nil
}

func (d dateValue) AttrNames() []string {
	names := []string{"day", "isoformat", "isoweekday", "month", "strftime", "weekday", "year"}
	if !d.dateOnly {
		names = append(names, "date", "hour", "microsecond", "minute", "second", "timestamp")
	}
	return names
}

func (d dateValue) method(name string, fn func() starlark.Value) *starlark.Builtin {
	return starlark.NewBuiltin(d.Type()+"."+name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return fn(), nil
	})
}

func (d dateValue) isoformat() string {
	if d.dateOnly {
		return d.t.Format("2006-01-02")
	}
	return d.t.Format("2006-01-02T15:04:05") + micros(d.t)
}

func micros(t time.Time) string {
	if us := t.Nanosecond() / 1000; us != 0 {
		return fmt.Sprintf(".%06d", us)
	}
	return ""
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ValueError: invalid isoformat string: %q", s)
}

// strftime formats t with Python's % directives.
func strftime(t time.Time, format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(format) {
			return "", fmt.Errorf("ValueError: stray %% in format %q", format)
		}
		switch format[i] {
		case 'Y':
			b.WriteString(strconv.Itoa(t.Year()))
		case 'y':
			fmt.Fprintf(&b, "%02d", t.Year()%100)
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'I':
			fmt.Fprintf(&b, "%02d", (t.Hour()+11)%12+1)
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'f':
			fmt.Fprintf(&b, "%06d", t.Nanosecond()/1000)
		case 'p':
			b.WriteString(t.Format("PM"))
		case 'j':
			fmt.Fprintf(&b, "%03d", t.YearDay())
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'A':
			b.WriteString(t.Format("Monday"))
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'B':
			b.WriteString(t.Format("January"))
		case 'w':
			b.WriteString(strconv.Itoa(int(t.Weekday())))
		case 'z':
			b.WriteString(t.Format("-0700"))
		case 'Z':
			b.WriteString(t.Format("MST"))
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("ValueError: unsupported directive %%%c", format[i])
		}
	}
	return b.String(), nil
}

var layoutDirectives = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02", 'H': "15", 'I': "03",
	'M': "04", 'S': "05", 'f': "000000", 'p': "PM", 'a': "Mon", 'A': "Monday",
	'b': "Jan", 'B': "January", 'z': "-0700", 'Z': "MST", '%': "%",
}

// goLayout converts a strptime format into a time.Parse layout.
func goLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i == len(format) {
			return "", fmt.Errorf("ValueError: stray %% in format %q", format)
		}
		l, ok := layoutDirectives[format[i]]
		if !ok {
			return "", fmt.Errorf("ValueError: unsupported directive %%%c", format[i])
		}
		b.WriteString(l)
	}
	return b.String(), nil
}

// builtinTimedelta builds a time.duration from Python's keyword units.
func builtinTimedelta(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var days, seconds, microseconds, milliseconds, minutes, hours, weeks starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"days?", &days, "seconds?", &seconds, "microseconds?", &microseconds,
		"milliseconds?", &milliseconds, "minutes?", &minutes, "hours?", &hours, "weeks?", &weeks); err != nil {
		return nil, err
	}
	var total float64
	for _, u := range []struct {
		v    starlark.Value
		unit time.Duration
	}{
		{days, 24 * time.Hour}, {seconds, time.Second}, {microseconds, time.Microsecond},
		{milliseconds, time.Millisecond}, {minutes, time.Minute}, {hours, time.Hour}, {weeks, 7 * 24 * time.Hour},
	} {
		if u.v == nil {
			continue
		}
		f, ok := starlark.AsFloat(u.v)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want a number", b.Name(), u.v.Type())
		}
		total += f * float64(u.unit)
	}
	return startime.Duration(time.Duration(total)), nil
}
