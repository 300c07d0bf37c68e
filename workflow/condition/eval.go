package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// evaluator walks a validated tree. Values are normalized to
// nil, bool, int64, float64, string, []any and map[string]any.
type evaluator struct {
	vars map[string]any
}

func (ev *evaluator) eval(n node) (any, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.value, nil

	case *nameNode:
		v, ok := ev.vars[n.name]
		if !ok {
			return nil, fmt.Errorf("name %q is not defined", n.name)
		}
		return normalize(v), nil

	case *attrNode:
		target, err := ev.eval(n.target)
		if err != nil {
			return nil, err
		}
		m, ok := target.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s has no attribute %q", typeName(target), n.name)
		}
		v, ok := m[n.name]
		if !ok {
			return nil, fmt.Errorf("attribute %q not found", n.name)
		}
		return normalize(v), nil

	case *indexNode:
		target, err := ev.eval(n.target)
		if err != nil {
			return nil, err
		}
		index, err := ev.eval(n.index)
		if err != nil {
			return nil, err
		}
		return subscript(target, index)

	case *listNode:
		out := make([]any, 0, len(n.elems))
		for _, e := range n.elems {
			v, err := ev.eval(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *dictNode:
		out := make(map[string]any, len(n.keys))
		for i := range n.keys {
			k, err := ev.eval(n.keys[i])
			if err != nil {
				return nil, err
			}
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings, got %s", typeName(k))
			}
			v, err := ev.eval(n.values[i])
			if err != nil {
				return nil, err
			}
			out[ks] = v
		}
		return out, nil

	case *unaryNode:
		v, err := ev.eval(n.operand)
		if err != nil {
			return nil, err
		}
		return unary(n.op, v)

	case *binaryNode:
		l, err := ev.eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := ev.eval(n.right)
		if err != nil {
			return nil, err
		}
		return arithmetic(n.op, l, r)

	case *compareNode:
		left, err := ev.eval(n.left)
		if err != nil {
			return nil, err
		}
		for i, op := range n.ops {
			right, err := ev.eval(n.rights[i])
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *logicalNode:
		l, err := ev.eval(n.left)
		if err != nil {
			return nil, err
		}
		if (n.op == "and") != truthy(l) {
			return l, nil
		}
		return ev.eval(n.right)

	default:
		return nil, fmt.Errorf("cannot evaluate %T", n)
	}
}

func subscript(target, index any) (any, error) {
	switch t := target.(type) {
	case map[string]any:
		k, ok := index.(string)
		if !ok {
			return nil, fmt.Errorf("map key must be a string, got %s", typeName(index))
		}
		v, ok := t[k]
		if !ok {
			return nil, fmt.Errorf("key %q not found", k)
		}
		return normalize(v), nil
	case []any:
		i, err := sequenceIndex(index, len(t))
		if err != nil {
			return nil, err
		}
		return normalize(t[i]), nil
	case string:
		runes := []rune(t)
		i, err := sequenceIndex(index, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	default:
		return nil, fmt.Errorf("%s is not subscriptable", typeName(target))
	}
}

func sequenceIndex(index any, length int) (int, error) {
	i, ok := index.(int64)
	if !ok {
		return 0, fmt.Errorf("index must be an integer, got %s", typeName(index))
	}
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, fmt.Errorf("index %d out of range", i)
	}
	return int(i), nil
}

func unary(op string, v any) (any, error) {
	switch op {
	case "not":
		return !truthy(v), nil
	case "-":
		switch x := v.(type) {
		case int64:
			if x == math.MinInt64 {
				return -float64(x), nil
			}
			return -x, nil
		case float64:
			return -x, nil
		}
	case "+":
		switch v.(type) {
		case int64, float64:
			return v, nil
		}
	}
	return nil, fmt.Errorf("bad operand type for unary %s: %s", op, typeName(v))
}

func arithmetic(op string, l, r any) (any, error) {
	if li, ok := l.(int64); ok {
		if ri, ok := r.(int64); ok {
			return intArithmetic(op, li, ri)
		}
	}
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return floatArithmetic(op, lf, rf)
		}
	}
	if op == "+" {
		switch lv := l.(type) {
		case string:
			if rv, ok := r.(string); ok {
				return lv + rv, nil
			}
		case []any:
			if rv, ok := r.([]any); ok {
				out := make([]any, 0, len(lv)+len(rv))
				return append(append(out, lv...), rv...), nil
			}
		}
	}
	return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, typeName(l), typeName(r))
}

// intArithmetic switches to float64 when a result does not fit in int64.
func intArithmetic(op string, l, r int64) (any, error) {
	switch op {
	case "+":
		s := l + r
		if (l > 0 && r > 0 && s < 0) || (l < 0 && r < 0 && s >= 0) {
			return float64(l) + float64(r), nil
		}
		return s, nil
	case "-":
		d := l - r
		if (l >= 0 && r < 0 && d < 0) || (l < 0 && r > 0 && d >= 0) {
			return float64(l) - float64(r), nil
		}
		return d, nil
	case "*":
		if l == 0 || r == 0 {
			return int64(0), nil
		}
		p := l * r
		if p/r != l || (l == -1 && r == math.MinInt64) || (r == -1 && l == math.MinInt64) {
			return float64(l) * float64(r), nil
		}
		return p, nil
	case "/":
		if r == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return float64(l) / float64(r), nil
	case "//":
		if r == 0 {
			return nil, fmt.Errorf("integer division by zero")
		}
		if l == math.MinInt64 && r == -1 {
			return -float64(l), nil
		}
		q := l / r
		if (l%r != 0) && ((l < 0) != (r < 0)) {
			q--
		}
		return q, nil
	case "%":
		if r == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		m := l % r
		if m != 0 && ((m < 0) != (r < 0)) {
			m += r
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func floatArithmetic(op string, l, r float64) (any, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/", "//", "%":
		if r == 0 {
			return nil, fmt.Errorf("float division by zero")
		}
		switch op {
		case "/":
			return l / r, nil
		case "//":
			return math.Floor(l / r), nil
		default:
			m := math.Mod(l, r)
			if m != 0 && ((m < 0) != (r < 0)) {
				m += r
			}
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func compare(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "in":
		return contains(r, l)
	case "not in":
		ok, err := contains(r, l)
		return !ok, err
	case "is":
		return identical(l, r), nil
	case "is not":
		return !identical(l, r), nil
	}

	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return order(op, compareFloat(lf, rf)), nil
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return order(op, strings.Compare(ls, rs)), nil
		}
	}
	return false, fmt.Errorf("'%s' not supported between %s and %s", op, typeName(l), typeName(r))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func order(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, e := range c {
			if equal(normalize(e), item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		k, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[k]
		return found, nil
	}
	return false, fmt.Errorf("argument of type %s is not iterable", typeName(container))
}

// identical approximates object identity: scalars of the same type with the
// same value, or containers sharing the same backing storage.
func identical(l, r any) bool {
	switch lv := l.(type) {
	case nil:
		return r == nil
	case bool, int64, float64, string:
		return typeName(l) == typeName(r) && l == r
	case []any:
		rv, ok := r.([]any)
		return ok && len(lv) == len(rv) && (len(lv) == 0 || &lv[0] == &rv[0])
	case map[string]any:
		rv, ok := r.(map[string]any)
		return ok && reflect.ValueOf(lv).UnsafePointer() == reflect.ValueOf(rv).UnsafePointer()
	}
	return false
}

func equal(l, r any) bool {
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return lf == rf
		}
	}
	switch lv := l.(type) {
	case nil:
		return r == nil
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv
	case string:
		rv, ok := r.(string)
		return ok && lv == rv
	case []any:
		rv, ok := r.([]any)
		if !ok || len(lv) != len(rv) {
			return false
		}
		for i := range lv {
			if !equal(normalize(lv[i]), normalize(rv[i])) {
				return false
			}
		}
		return true
	case map[string]any:
		rv, ok := r.(map[string]any)
		if !ok || len(lv) != len(rv) {
			return false
		}
		for k, v := range lv {
			w, ok := rv[k]
			if !ok || !equal(normalize(v), normalize(w)) {
				return false
			}
		}
		return true
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// normalize maps caller-supplied Go values onto the evaluator's value set.
// Nested containers are converted lazily as they are accessed.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, []any, map[string]any:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}
