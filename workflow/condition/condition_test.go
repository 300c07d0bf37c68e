package condition

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/flowcore/types"
)

func TestEvaluate(t *testing.T) {
	vars := map[string]any{
		"output": map[string]any{"x": 1, "tags": []string{"a", "b"}, "name": "alpha"},
		"score":  0.9,
		"count":  int32(5),
		"items":  []any{1, 2, 3},
		"empty":  []any{},
		"status": "active",
		"flag":   true,
		"none":   nil,
	}

	tests := []struct {
		name     string
		expr     string
		expected bool
	}{
		{"empty is true", "", true},
		{"whitespace is true", "   ", true},
		{"literal equality", "1 == 1", true},
		{"float compare", "score > 0.8", true},
		{"int against float", "count == 5.0", true},
		{"attribute access", "output.x > 0", true},
		{"subscript access", `output["name"] == "alpha"`, true},
		{"nested subscript", `output["tags"][1] == "b"`, true},
		{"negative index", "items[-1] == 3", true},
		{"chained comparison", "0 < count <= 5", true},
		{"chained comparison short circuits", "10 < count < 20", false},
		{"in list", `"a" in output.tags`, true},
		{"not in list", `"z" not in output.tags`, true},
		{"substring in", `"act" in status`, true},
		{"key in dict", `"x" in output`, true},
		{"python and/or", "flag and not none", true},
		{"c style logic", "flag && !(count > 10) || false", true},
		{"arithmetic", "count * 2 - 1 == 9", true},
		{"true division", "7 / 2 == 3.5", true},
		{"floor division", "-7 // 2 == -4", true},
		{"python modulo", "-7 % 3 == 2", true},
		{"unary minus", "-count < 0", true},
		{"list literal", "[1, 2] == [1, 2]", true},
		{"tuple literal", "(1, 2) == [1, 2]", true},
		{"dict literal", `{"a": 1} == {"a": 1.0}`, true},
		{"empty list is falsy", "empty", false},
		{"none literal", "none == None", true},
		{"null literal", "none == null", true},
		{"string concat", `status + "!" == "active!"`, true},
		{"false branch", `status == "inactive"`, false},
		{"single quotes", `status == 'active'`, true},
		{"or returns operand", "empty or items", true},
		{"is not none", "output.x is not None", true},
		{"is none", "none is None", true},
		{"is none false", "output.x is None", false},
		{"is bool", "flag is True", true},
		{"is same int", "count is 5", true},
		{"is differs across int and float", "1 is 1.0", false},
		{"is same list", "items is items", true},
		{"is fresh list", "[1] is [1]", false},
		{"is not string", `status is not "inactive"`, true},
		{"overflowing multiply", "9223372036854775807 * 2 > 9223372036854775807", true},
		{"overflowing subtract", "-9223372036854775807 - 9223372036854775807 < -9223372036854775807", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	vars := map[string]any{
		"output": map[string]any{"x": 1},
		"items":  []any{1},
		"word":   "hi",
	}

	tests := []struct {
		name string
		expr string
		code types.ErrorCode
	}{
		{"dunder attribute", "__class__", types.ErrConditionUnsafeToken},
		{"dunder on variable", "output.__class__", types.ErrConditionUnsafeToken},
		{"import token", "import os", types.ErrConditionUnsafeToken},
		{"open token", `output == "opened"`, types.ErrConditionUnsafeToken},
		{"eval token", "evaluate > 1", types.ErrConditionUnsafeToken},
		{"exec token", "exec", types.ErrConditionUnsafeToken},
		{"benign call", "len(items) > 0", types.ErrConditionDisallowed},
		{"method call", "word.upper()", types.ErrConditionDisallowed},
		{"call inside list", "[max(1, 2)]", types.ErrConditionDisallowed},
		{"private attribute", "output._secret", types.ErrConditionDisallowed},
		{"assignment", "x = 1", types.ErrConditionDisallowed},
		{"dangling is", "output.x is", types.ErrConditionDisallowed},
		{"dangling operator", "1 +", types.ErrConditionDisallowed},
		{"unbalanced paren", "(1 == 1", types.ErrConditionDisallowed},
		{"bad character", "a ; b", types.ErrConditionDisallowed},
		{"unterminated string", `"abc`, types.ErrConditionDisallowed},
		{"missing name", "missing > 1", types.ErrConditionEvaluation},
		{"missing attribute", "output.y > 1", types.ErrConditionEvaluation},
		{"index out of range", "items[5] == 1", types.ErrConditionEvaluation},
		{"type mismatch", `word > 1`, types.ErrConditionEvaluation},
		{"division by zero", "1 / 0 == 1", types.ErrConditionEvaluation},
		{"attribute on list", "items.x", types.ErrConditionEvaluation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, vars)
			require.Error(t, err)
			assert.False(t, got)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
			assert.True(t, types.IsClientError(err))
		})
	}
}

func TestCompile_TooLong(t *testing.T) {
	expr := strings.Repeat("1 == 1 and ", 50) + "true"
	require.Greater(t, len(expr), DefaultMaxLength)

	_, err := Compile(expr)
	require.Error(t, err)
	assert.Equal(t, types.ErrConditionTooLong, types.GetErrorCode(err))

	e, err := CompileWithLimit(expr, 1000)
	require.NoError(t, err)
	ok, err := e.Evaluate(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompile_LengthCountsCharacters(t *testing.T) {
	expr := `"` + strings.Repeat("字", 200) + `" != ""`
	require.Greater(t, len(expr), DefaultMaxLength)

	ok, err := Evaluate(expr, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Compile(`"` + strings.Repeat("字", DefaultMaxLength) + `"`)
	assert.Equal(t, types.ErrConditionTooLong, types.GetErrorCode(err))
}

func TestIntArithmetic_Overflow(t *testing.T) {
	tests := []struct {
		name string
		op   string
		l, r int64
		want any
	}{
		{"add fits", "+", 1, 2, int64(3)},
		{"add overflows", "+", math.MaxInt64, 1, float64(math.MaxInt64) + 1},
		{"sub overflows", "-", math.MinInt64, 1, float64(math.MinInt64) - 1},
		{"mul fits", "*", -3, 4, int64(-12)},
		{"mul overflows", "*", math.MaxInt64, 2, float64(math.MaxInt64) * 2},
		{"mul min by minus one", "*", math.MinInt64, -1, -float64(math.MinInt64)},
		{"floor div min by minus one", "//", math.MinInt64, -1, -float64(math.MinInt64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intArithmetic(tt.op, tt.l, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	neg, err := unary("-", int64(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, -float64(math.MinInt64), neg)
}

func TestExpression_Reusable(t *testing.T) {
	e, err := Compile("output.x > 0")
	require.NoError(t, err)
	assert.False(t, e.Empty())
	assert.Equal(t, "output.x > 0", e.String())

	pos, err := e.Evaluate(map[string]any{"output": map[string]any{"x": 1}})
	require.NoError(t, err)
	assert.True(t, pos)

	neg, err := e.Evaluate(map[string]any{"output": map[string]any{"x": -1}})
	require.NoError(t, err)
	assert.False(t, neg)
}

func TestEvaluate_CallRejectedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fn := rapid.SampledFrom([]string{"len", "max", "min", "str", "score", "check", "output.get"}).Draw(t, "fn")
		args := rapid.SliceOfN(rapid.SampledFrom([]string{"1", "x", `"a"`, "[1, 2]", "output.x"}), 0, 3).Draw(t, "args")
		call := fn + "(" + strings.Join(args, ", ") + ")"
		wrap := rapid.SampledFrom([]string{"%s", "%s > 0", "not %s", "1 == 1 and %s", "[%s]", "x[%s]"}).Draw(t, "wrap")
		expr := strings.ReplaceAll(wrap, "%s", call)

		_, err := Evaluate(expr, map[string]any{"x": 1})
		if types.GetErrorCode(err) != types.ErrConditionDisallowed {
			t.Fatalf("expression %q: expected disallowed construct, got %v", expr, err)
		}
	})
}
