package sandbox

import (
	"math"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/pm"
)

// Approximate heap cost of table slots and values.
const (
	slotBytes  = 40
	valueBytes = 16
)

// meter enforces the per-run memory limits. Every string a snippet can
// build is checked against maxString before it is allocated, and every
// table store is charged against limit. Charges are never refunded.
type meter struct {
	maxString int
	limit     int64
	used      int64
	exceeded  bool
}

func newMeter(cfg Config) *meter {
	return &meter{maxString: cfg.MaxStringBytes, limit: cfg.MaxMemoryBytes}
}

func (m *meter) charge(L *lua.LState, n int) {
	m.used += int64(n)
	if m.used > m.limit {
		m.exceeded = true
		L.RaiseError("memory limit of %d bytes exceeded", m.limit)
	}
}

func (m *meter) checkString(L *lua.LState, n int) {
	if n > m.maxString {
		m.exceeded = true
		L.RaiseError("string of %d bytes exceeds limit of %d bytes", n, m.maxString)
	}
}

func valueSize(v lua.LValue) int {
	if s, ok := v.(lua.LString); ok {
		return valueBytes + len(s)
	}
	return valueBytes
}

// install binds the instrumentation hooks and replaces the library
// functions that can grow strings or tables faster than one value per call.
func (m *meter) install(L *lua.LState) {
	L.SetGlobal(hookConcat, L.NewFunction(m.concat))
	L.SetGlobal(hookStore, L.NewFunction(m.store))
	L.SetGlobal(hookTable, L.NewFunction(m.table))

	if str, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		str.RawSetString("gsub", L.NewFunction(m.gsub))
		if orig := libFunction(str, "format"); orig != nil {
			str.RawSetString("format", L.NewFunction(m.format(orig)))
		}
	}
	if tab, ok := L.GetGlobal(lua.TabLibName).(*lua.LTable); ok {
		if orig := libFunction(tab, "insert"); orig != nil {
			tab.RawSetString("insert", L.NewFunction(m.insert(orig)))
		}
		if orig := libFunction(tab, "concat"); orig != nil {
			tab.RawSetString("concat", L.NewFunction(m.tableConcat(orig)))
		}
	}
}

func libFunction(lib *lua.LTable, name string) lua.LGFunction {
	fn, ok := lib.RawGetString(name).(*lua.LFunction)
	if !ok || !fn.IsG {
		return nil
	}
	return fn.GFunction
}

// concat implements the .. operator over all operands of a chain.
func (m *meter) concat(L *lua.LState) int {
	top := L.GetTop()
	total := 0
	for i := 1; i <= top; i++ {
		v := L.Get(i)
		if !lua.LVCanConvToString(v) {
			L.RaiseError("attempt to concatenate a %s value", v.Type().String())
		}
		if s, ok := v.(lua.LString); ok {
			total += len(s)
		} else {
			total += 24
		}
	}
	m.checkString(L, total)

	var b strings.Builder
	b.Grow(total)
	for i := 1; i <= top; i++ {
		b.WriteString(lua.LVAsString(L.Get(i)))
	}
	L.Push(lua.LString(b.String()))
	return 1
}

// store implements t[k] = v.
func (m *meter) store(L *lua.LState) int {
	obj, key, val := L.Get(1), L.Get(2), L.Get(3)
	t, ok := obj.(*lua.LTable)
	if !ok {
		L.RaiseError("attempt to index a %s value", obj.Type().String())
	}
	switch k := key.(type) {
	case *lua.LNilType:
		L.RaiseError("table index is nil")
	case lua.LNumber:
		if math.IsNaN(float64(k)) {
			L.RaiseError("table index is NaN")
		}
	}

	old := t.RawGet(key)
	switch {
	case val == lua.LNil:
	case old == lua.LNil:
		m.charge(L, slotBytes+valueSize(key)+valueSize(val))
	default:
		if d := valueSize(val) - valueSize(old); d > 0 {
			m.charge(L, d)
		}
	}
	t.RawSet(key, val)
	return 0
}

// table charges a freshly constructed table literal and returns it.
func (m *meter) table(L *lua.LState) int {
	t := L.CheckTable(1)
	n := 0
	t.ForEach(func(k, v lua.LValue) { n += slotBytes + valueSize(k) + valueSize(v) })
	if n > 0 {
		m.charge(L, n)
	}
	L.Push(t)
	return 1
}

// entries charges n new slots created by a host builtin.
func (m *meter) entries(L *lua.LState, n int) {
	if n > 0 {
		m.charge(L, n*(slotBytes+valueBytes))
	}
}

func (m *meter) insert(orig lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if L.GetTop() >= 2 {
			m.charge(L, slotBytes+valueSize(L.Get(L.GetTop())))
		}
		return orig(L)
	}
}

func (m *meter) tableConcat(orig lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		t := L.CheckTable(1)
		sep := len(L.OptString(2, ""))
		i := max(L.OptInt(3, 1), 1)
		j := min(L.OptInt(4, t.Len()), t.Len())
		total := 0
		for k := i; k <= j; k++ {
			v := t.RawGetInt(k)
			if s, ok := v.(lua.LString); ok {
				total += len(s)
			} else {
				total += 24
			}
			if k != j {
				total += sep
			}
			if total > m.maxString {
				break
			}
		}
		m.checkString(L, total)
		return orig(L)
	}
}

// format rejects width or precision above two digits and bounds the
// result before formatting.
func (m *meter) format(orig lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		f := L.CheckString(1)
		specs := 0
		for i := 0; i < len(f); i++ {
			if f[i] != '%' {
				continue
			}
			i++
			if i < len(f) && f[i] == '%' {
				continue
			}
			specs++
			for i < len(f) && strings.IndexByte("-+ #0", f[i]) >= 0 {
				i++
			}
			digits := 0
			for i < len(f) && f[i] >= '0' && f[i] <= '9' {
				i++
				digits++
			}
			if i < len(f) && f[i] == '.' {
				i++
				prec := 0
				for i < len(f) && f[i] >= '0' && f[i] <= '9' {
					i++
					prec++
				}
				digits = max(digits, prec)
			}
			if digits > 2 {
				L.RaiseError("invalid format (width or precision too long)")
			}
		}
		total := len(f) + specs*(99+24)
		for i := 2; i <= L.GetTop(); i++ {
			total += valueSize(L.Get(i))
		}
		m.checkString(L, total)
		return orig(L)
	}
}

// gsub is string.gsub with the result size checked as it is built.
func (m *meter) gsub(L *lua.LState) int {
	str := L.CheckString(1)
	pat := L.CheckString(2)
	L.CheckTypes(3, lua.LTString, lua.LTTable, lua.LTFunction)
	repl := L.CheckAny(3)
	limit := L.OptInt(4, -1)

	matches, err := pm.Find(pat, []byte(str), 0, limit)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	if len(matches) == 0 {
		L.Push(lua.LString(str))
		L.Push(lua.LNumber(0))
		return 2
	}

	var out strings.Builder
	last := 0
	for _, md := range matches {
		start, end := md.Capture(0), md.Capture(1)
		piece, replaced := m.replacement(L, str, repl, md)
		if !replaced {
			piece = str[start:end]
		}
		m.checkString(L, out.Len()+(start-last)+len(piece)+(len(str)-end))
		out.WriteString(str[last:start])
		out.WriteString(piece)
		last = end
	}
	out.WriteString(str[last:])

	L.Push(lua.LString(out.String()))
	L.Push(lua.LNumber(len(matches)))
	return 2
}

func (m *meter) replacement(L *lua.LState, str string, repl lua.LValue, md *pm.MatchData) (string, bool) {
	switch r := repl.(type) {
	case lua.LString:
		return m.expand(L, str, string(r), md), true
	case *lua.LTable:
		idx := 0
		if md.CaptureLength() > 2 {
			idx = 2
		}
		var v lua.LValue
		if md.IsPosCapture(idx) {
			v = L.GetTable(r, lua.LNumber(md.Capture(idx)))
		} else {
			v = L.GetField(r, str[md.Capture(idx):md.Capture(idx+1)])
		}
		if lua.LVIsFalse(v) {
			return "", false
		}
		return lua.LVAsString(v), true
	case *lua.LFunction:
		L.Push(r)
		nargs := 0
		if md.CaptureLength() > 2 {
			for i := 2; i < md.CaptureLength(); i += 2 {
				if md.IsPosCapture(i) {
					L.Push(lua.LNumber(md.Capture(i)))
				} else {
					L.Push(lua.LString(captured(L, md, str, i)))
				}
				nargs++
			}
		} else {
			L.Push(lua.LString(captured(L, md, str, 0)))
			nargs++
		}
		L.Call(nargs, 1)
		v := L.Get(-1)
		L.Pop(1)
		if lua.LVIsFalse(v) {
			return "", false
		}
		return lua.LVAsString(v), true
	}
	return "", false
}

// expand substitutes %0-%9 in a replacement template.
func (m *meter) expand(L *lua.LState, str, tmpl string, md *pm.MatchData) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '%' || i+1 == len(tmpl) {
			b.WriteByte(c)
			continue
		}
		i++
		switch n := tmpl[i]; {
		case n >= '0' && n <= '9':
			s := captured(L, md, str, 2*int(n-'0'))
			m.checkString(L, b.Len()+len(s))
			b.WriteString(s)
		case n == '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(n)
		}
	}
	return b.String()
}

func captured(L *lua.LState, md *pm.MatchData, str string, idx int) string {
	if idx > 2 && idx >= md.CaptureLength() {
		L.RaiseError("invalid capture index")
	}
	if idx == 2 && idx >= md.CaptureLength() {
		idx = 0
	}
	if md.IsPosCapture(idx) {
		return strconv.Itoa(md.Capture(idx))
	}
	return str[md.Capture(idx):md.Capture(idx+1)]
}
