package sandbox

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

// builtins are the Python-style helpers exposed to snippets. Sequences are
// Lua arrays; range, enumerate and zip produce Lua arrays as well. Every
// table a builtin creates is charged to meter.
type builtins struct {
	maxLen int
	meter  *meter
}

func (b *builtins) functions() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"abs":       b.abs,
		"all":       b.all,
		"any":       b.any,
		"bool":      b.bool,
		"dict":      b.dict,
		"float":     b.float,
		"int":       b.int,
		"len":       b.len,
		"list":      b.list,
		"max":       b.max,
		"min":       b.min,
		"range":     b.rangeFn,
		"str":       b.str,
		"sum":       b.sum,
		"enumerate": b.enumerate,
		"zip":       b.zip,
		"sorted":    b.sorted,
	}
}

func (b *builtins) abs(L *lua.LState) int {
	L.Push(lua.LNumber(math.Abs(float64(L.CheckNumber(1)))))
	return 1
}

func (b *builtins) all(L *lua.LState) int {
	t := L.CheckTable(1)
	for i := 1; i <= t.Len(); i++ {
		if !truthy(t.RawGetInt(i)) {
			L.Push(lua.LFalse)
			return 1
		}
	}
	L.Push(lua.LTrue)
	return 1
}

func (b *builtins) any(L *lua.LState) int {
	t := L.CheckTable(1)
	for i := 1; i <= t.Len(); i++ {
		if truthy(t.RawGetInt(i)) {
			L.Push(lua.LTrue)
			return 1
		}
	}
	L.Push(lua.LFalse)
	return 1
}

func (b *builtins) bool(L *lua.LState) int {
	L.Push(lua.LBool(truthy(L.Get(1))))
	return 1
}

func (b *builtins) dict(L *lua.LState) int {
	out := L.NewTable()
	if L.GetTop() >= 1 {
		src := L.CheckTable(1)
		n := 0
		src.ForEach(func(_, _ lua.LValue) { n++ })
		b.meter.entries(L, n)
		src.ForEach(func(k, v lua.LValue) { out.RawSet(k, v) })
	}
	L.Push(out)
	return 1
}

func (b *builtins) float(L *lua.LState) int {
	L.Push(lua.LNumber(toNumber(L, 1)))
	return 1
}

func (b *builtins) int(L *lua.LState) int {
	L.Push(lua.LNumber(math.Trunc(toNumber(L, 1))))
	return 1
}

func (b *builtins) len(L *lua.LState) int {
	switch v := L.Get(1).(type) {
	case lua.LString:
		L.Push(lua.LNumber(utf8.RuneCountInString(string(v))))
	case *lua.LTable:
		n := 0
		v.ForEach(func(_, _ lua.LValue) { n++ })
		L.Push(lua.LNumber(n))
	default:
		L.ArgError(1, "object has no len()")
	}
	return 1
}

func (b *builtins) list(L *lua.LState) int {
	out := L.NewTable()
	switch v := L.Get(1).(type) {
	case *lua.LNilType:
	case lua.LString:
		b.meter.entries(L, utf8.RuneCountInString(string(v)))
		for _, r := range string(v) {
			out.Append(lua.LString(string(r)))
		}
	case *lua.LTable:
		if v.Len() > 0 {
			b.meter.entries(L, v.Len())
			for i := 1; i <= v.Len(); i++ {
				out.Append(v.RawGetInt(i))
			}
		} else {
			keys := sortedKeys(v)
			b.meter.entries(L, len(keys))
			for _, k := range keys {
				out.Append(k)
			}
		}
	default:
		L.ArgError(1, "object is not iterable")
	}
	L.Push(out)
	return 1
}

func (b *builtins) max(L *lua.LState) int { return b.extreme(L, false) }
func (b *builtins) min(L *lua.LState) int { return b.extreme(L, true) }

// extreme accepts either a single array or two or more values.
func (b *builtins) extreme(L *lua.LState, wantMin bool) int {
	var values []lua.LValue
	if L.GetTop() == 1 {
		t := L.CheckTable(1)
		for i := 1; i <= t.Len(); i++ {
			values = append(values, t.RawGetInt(i))
		}
	} else {
		for i := 1; i <= L.GetTop(); i++ {
			values = append(values, L.Get(i))
		}
	}
	if len(values) == 0 {
		L.RaiseError("arg is an empty sequence")
	}
	best := values[0]
	for _, v := range values[1:] {
		if wantMin && L.LessThan(v, best) || !wantMin && L.LessThan(best, v) {
			best = v
		}
	}
	L.Push(best)
	return 1
}

func (b *builtins) rangeFn(L *lua.LState) int {
	start, stop, step := 0, 0, 1
	switch L.GetTop() {
	case 1:
		stop = L.CheckInt(1)
	case 2:
		start, stop = L.CheckInt(1), L.CheckInt(2)
	default:
		start, stop, step = L.CheckInt(1), L.CheckInt(2), L.CheckInt(3)
	}
	if step == 0 {
		L.ArgError(3, "range() step must not be zero")
	}
	n := 0
	if step > 0 && stop > start {
		n = (stop - start + step - 1) / step
	} else if step < 0 && start > stop {
		n = (start - stop - step - 1) / -step
	}
	if n > b.maxLen {
		L.RaiseError("range() of %d elements exceeds limit %d", n, b.maxLen)
	}
	b.meter.entries(L, n)
	out := L.CreateTable(n, 0)
	for i := 0; i < n; i++ {
		out.Append(lua.LNumber(start + i*step))
	}
	L.Push(out)
	return 1
}

func (b *builtins) str(L *lua.LState) int {
	switch v := L.Get(1).(type) {
	case *lua.LNilType:
		L.Push(lua.LString("None"))
	case lua.LBool:
		if v {
			L.Push(lua.LString("True"))
		} else {
			L.Push(lua.LString("False"))
		}
	case lua.LNumber:
		L.Push(lua.LString(formatNumber(float64(v))))
	default:
		L.Push(lua.LString(v.String()))
	}
	return 1
}

func (b *builtins) sum(L *lua.LState) int {
	t := L.CheckTable(1)
	total := float64(L.OptNumber(2, 0))
	for i := 1; i <= t.Len(); i++ {
		n, ok := t.RawGetInt(i).(lua.LNumber)
		if !ok {
			L.RaiseError("unsupported operand type for sum: %s", t.RawGetInt(i).Type().String())
		}
		total += float64(n)
	}
	L.Push(lua.LNumber(total))
	return 1
}

func (b *builtins) enumerate(L *lua.LState) int {
	t := L.CheckTable(1)
	start := L.OptInt(2, 0)
	b.meter.entries(L, 3*t.Len())
	out := L.CreateTable(t.Len(), 0)
	for i := 1; i <= t.Len(); i++ {
		pair := L.CreateTable(2, 0)
		pair.Append(lua.LNumber(start + i - 1))
		pair.Append(t.RawGetInt(i))
		out.Append(pair)
	}
	L.Push(out)
	return 1
}

func (b *builtins) zip(L *lua.LState) int {
	top := L.GetTop()
	tables := make([]*lua.LTable, 0, top)
	shortest := -1
	for i := 1; i <= top; i++ {
		t := L.CheckTable(i)
		tables = append(tables, t)
		if shortest < 0 || t.Len() < shortest {
			shortest = t.Len()
		}
	}
	b.meter.entries(L, max(shortest, 0)*(len(tables)+1))
	out := L.NewTable()
	for i := 1; i <= shortest; i++ {
		tuple := L.CreateTable(len(tables), 0)
		for _, t := range tables {
			tuple.Append(t.RawGetInt(i))
		}
		out.Append(tuple)
	}
	L.Push(out)
	return 1
}

func (b *builtins) sorted(L *lua.LState) int {
	t := L.CheckTable(1)
	reverse := L.OptBool(2, false)
	b.meter.entries(L, t.Len())
	values := make([]lua.LValue, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		values = append(values, t.RawGetInt(i))
	}
	sort.SliceStable(values, func(i, j int) bool {
		if reverse {
			return L.LessThan(values[j], values[i])
		}
		return L.LessThan(values[i], values[j])
	})
	out := L.CreateTable(len(values), 0)
	for _, v := range values {
		out.Append(v)
	}
	L.Push(out)
	return 1
}

// truthy follows Python rules: nil, false, 0, "" and empty tables are false.
func truthy(v lua.LValue) bool {
	switch x := v.(type) {
	case *lua.LNilType:
		return false
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return x != 0
	case lua.LString:
		return x != ""
	case *lua.LTable:
		empty := true
		x.ForEach(func(_, _ lua.LValue) { empty = false })
		return !empty
	}
	return true
}

func toNumber(L *lua.LState, n int) float64 {
	switch v := L.Get(n).(type) {
	case lua.LNumber:
		return float64(v)
	case lua.LBool:
		if v {
			return 1
		}
		return 0
	case lua.LString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			L.ArgError(n, "could not convert string to number: "+string(v))
		}
		return f
	}
	L.ArgError(n, "number expected")
	return 0
}

func formatNumber(f float64) string {
	if n, ok := number(f).(int64); ok {
		return strconv.FormatInt(n, 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
