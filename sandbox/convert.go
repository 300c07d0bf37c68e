package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

const maxDepth = 64

// toLua converts JSON-shaped Go data into Lua values.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(x), nil
	case float64:
		return lua.LNumber(x), nil
	case string:
		return lua.LString(x), nil
	case []any:
		t := L.CreateTable(len(x), 0)
		for _, e := range x {
			lv, err := toLua(L, e)
			if err != nil {
				return nil, err
			}
			t.Append(lv)
		}
		return t, nil
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, e := range x {
			lv, err := toLua(L, e)
			if err != nil {
				return nil, err
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported input type %T", v)
}

// fromLua converts a Lua value into plain Go data. Integral numbers become
// int64. Tables whose keys are exactly 1..n become slices; any other
// non-empty table becomes a map with stringified keys. Empty tables become
// empty maps.
func fromLua(v lua.LValue, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("output nested deeper than %d levels", maxDepth)
	}
	switch x := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LNumber:
		return number(float64(x)), nil
	case lua.LString:
		return string(x), nil
	case *lua.LTable:
		return tableFromLua(x, depth)
	}
	return nil, fmt.Errorf("unsupported output type %s", v.Type().String())
}

func number(f float64) any {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func tableFromLua(t *lua.LTable, depth int) (any, error) {
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })
	if count == 0 {
		return map[string]any{}, nil
	}

	if n := t.MaxN(); n == count {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			v, err := fromLua(t.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	out := make(map[string]any, count)
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}
		key, err := tableKey(k)
		if err != nil {
			firstErr = err
			return
		}
		val, err := fromLua(v, depth+1)
		if err != nil {
			firstErr = err
			return
		}
		out[key] = val
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func tableKey(k lua.LValue) (string, error) {
	switch x := k.(type) {
	case lua.LString:
		return string(x), nil
	case lua.LNumber:
		if n, ok := number(float64(x)).(int64); ok {
			return strconv.FormatInt(n, 10), nil
		}
		return strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case lua.LBool:
		return strconv.FormatBool(bool(x)), nil
	}
	return "", fmt.Errorf("unsupported table key type %s", k.Type().String())
}

// sortedKeys is used where iteration order must be stable.
func sortedKeys(t *lua.LTable) []lua.LValue {
	var keys []lua.LValue
	t.ForEach(func(k, _ lua.LValue) { keys = append(keys, k) })
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
