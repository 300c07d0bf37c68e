package condition

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/flowcore/types"
)

// DefaultMaxLength is the longest guard expression accepted by Compile.
const DefaultMaxLength = 500

// unsafeTokens are rejected by substring before any parsing happens.
var unsafeTokens = []string{"import", "open", "eval", "exec", "__"}

// Expression is a validated guard that can be evaluated repeatedly.
type Expression struct {
	source string
	root   node // nil for an empty guard
}

// Compile validates expr with the default length limit.
func Compile(expr string) (*Expression, error) {
	return CompileWithLimit(expr, DefaultMaxLength)
}

// CompileWithLimit validates expr and returns a reusable Expression.
// A non-positive maxLength falls back to DefaultMaxLength.
func CompileWithLimit(expr string, maxLength int) (*Expression, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if strings.TrimSpace(expr) == "" {
		return &Expression{source: expr}, nil
	}
	if utf8.RuneCountInString(expr) > maxLength {
		return nil, types.NewBadRequestError(types.ErrConditionTooLong,
			fmt.Sprintf("condition exceeds %d characters", maxLength))
	}
	for _, tok := range unsafeTokens {
		if strings.Contains(expr, tok) {
			return nil, types.NewBadRequestError(types.ErrConditionUnsafeToken,
				fmt.Sprintf("condition contains unsafe token %q", tok))
		}
	}

	root, err := parse(expr)
	if err != nil {
		return nil, types.NewBadRequestError(types.ErrConditionDisallowed, "condition is not a valid expression").
			WithCause(err)
	}
	if err := checkAllowed(root); err != nil {
		return nil, types.NewBadRequestError(types.ErrConditionDisallowed, err.Error())
	}
	return &Expression{source: expr, root: root}, nil
}

// Evaluate compiles and evaluates expr against vars in one step.
func Evaluate(expr string, vars map[string]any) (bool, error) {
	e, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Evaluate(vars)
}

// Evaluate runs the expression against vars. An empty expression is true.
func (e *Expression) Evaluate(vars map[string]any) (bool, error) {
	if e.root == nil {
		return true, nil
	}
	v, err := (&evaluator{vars: vars}).eval(e.root)
	if err != nil {
		return false, types.NewBadRequestError(types.ErrConditionEvaluation, "condition evaluation failed").
			WithCause(err)
	}
	return truthy(v), nil
}

// Empty reports whether the expression is a no-op guard.
func (e *Expression) Empty() bool { return e.root == nil }

// String returns the source text.
func (e *Expression) String() string { return e.source }

// checkAllowed walks the tree and rejects anything outside the allow-list.
func checkAllowed(n node) error {
	switch n := n.(type) {
	case *literalNode, *nameNode:
		return nil
	case *attrNode:
		if strings.HasPrefix(n.name, "_") {
			return fmt.Errorf("private attribute %q is not allowed", n.name)
		}
		return checkAllowed(n.target)
	case *indexNode:
		if err := checkAllowed(n.target); err != nil {
			return err
		}
		return checkAllowed(n.index)
	case *listNode:
		return checkAll(n.elems)
	case *dictNode:
		if err := checkAll(n.keys); err != nil {
			return err
		}
		return checkAll(n.values)
	case *unaryNode:
		return checkAllowed(n.operand)
	case *binaryNode:
		if err := checkAllowed(n.left); err != nil {
			return err
		}
		return checkAllowed(n.right)
	case *compareNode:
		if err := checkAllowed(n.left); err != nil {
			return err
		}
		return checkAll(n.rights)
	case *logicalNode:
		if err := checkAllowed(n.left); err != nil {
			return err
		}
		return checkAllowed(n.right)
	case *callNode:
		return fmt.Errorf("function calls are not allowed (position %d)", n.pos)
	default:
		return fmt.Errorf("unsupported construct %T", n)
	}
}

func checkAll(nodes []node) error {
	for _, n := range nodes {
		if err := checkAllowed(n); err != nil {
			return err
		}
	}
	return nil
}
