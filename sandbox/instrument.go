package sandbox

import (
	"strconv"

	"github.com/yuin/gopher-lua/ast"
)

// Host hooks are bound under names the Lua lexer cannot produce, so
// snippets can neither call nor replace them.
const (
	hookConcat = "concat!"
	hookStore  = "store!"
	hookTable  = "table!"
)

// instrument rewrites a parsed chunk so that every string concatenation,
// indexed store and table constructor passes through a metered host hook.
func instrument(chunk []ast.Stmt) []ast.Stmt {
	r := &rewriter{}
	return r.stmts(chunk)
}

type rewriter struct {
	temps int
}

func (r *rewriter) stmts(list []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, len(list))
	for i, st := range list {
		out[i] = r.stmt(st)
	}
	return out
}

func (r *rewriter) stmt(st ast.Stmt) ast.Stmt {
	switch s := st.(type) {
	case *ast.AssignStmt:
		return r.assign(s)
	case *ast.LocalAssignStmt:
		s.Exprs = r.exprs(s.Exprs)
	case *ast.FuncCallStmt:
		s.Expr = r.expr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = r.stmts(s.Stmts)
	case *ast.WhileStmt:
		s.Condition = r.expr(s.Condition)
		s.Stmts = r.stmts(s.Stmts)
	case *ast.RepeatStmt:
		s.Condition = r.expr(s.Condition)
		s.Stmts = r.stmts(s.Stmts)
	case *ast.IfStmt:
		s.Condition = r.expr(s.Condition)
		s.Then = r.stmts(s.Then)
		s.Else = r.stmts(s.Else)
	case *ast.NumberForStmt:
		s.Init = r.expr(s.Init)
		s.Limit = r.expr(s.Limit)
		if s.Step != nil {
			s.Step = r.expr(s.Step)
		}
		s.Stmts = r.stmts(s.Stmts)
	case *ast.GenericForStmt:
		s.Exprs = r.exprs(s.Exprs)
		s.Stmts = r.stmts(s.Stmts)
	case *ast.FuncDefStmt:
		s.Func.Stmts = r.stmts(s.Func.Stmts)
	case *ast.ReturnStmt:
		s.Exprs = r.exprs(s.Exprs)
	}
	return st
}

// assign turns "t[k] = v" into store!(t, k, v). Multiple assignments with
// indexed targets evaluate the right-hand side into fresh locals first:
//
//	do local v!1, v!2 = <rhs>; store!(t, i, v!1); x = v!2 end
func (r *rewriter) assign(s *ast.AssignStmt) ast.Stmt {
	s.Rhs = r.exprs(s.Rhs)
	indexed := false
	for i, lhs := range s.Lhs {
		if attr, ok := lhs.(*ast.AttrGetExpr); ok {
			attr.Object = r.expr(attr.Object)
			attr.Key = r.expr(attr.Key)
			indexed = true
		} else {
			s.Lhs[i] = r.expr(lhs)
		}
	}
	if !indexed {
		return s
	}

	if len(s.Lhs) == 1 {
		attr := s.Lhs[0].(*ast.AttrGetExpr)
		return r.storeStmt(s, attr, s.Rhs...)
	}

	names := make([]string, len(s.Lhs))
	for i := range names {
		r.temps++
		names[i] = "v!" + strconv.Itoa(r.temps)
	}
	locals := &ast.LocalAssignStmt{Names: names, Exprs: s.Rhs}
	locals.SetLine(s.Line())
	block := []ast.Stmt{locals}
	for i, lhs := range s.Lhs {
		val := ident(names[i], s.Line())
		if attr, ok := lhs.(*ast.AttrGetExpr); ok {
			block = append(block, r.storeStmt(s, attr, val))
			continue
		}
		plain := &ast.AssignStmt{Lhs: []ast.Expr{lhs}, Rhs: []ast.Expr{val}}
		plain.SetLine(s.Line())
		block = append(block, plain)
	}
	do := &ast.DoBlockStmt{Stmts: block}
	do.SetLine(s.Line())
	do.SetLastLine(s.LastLine())
	return do
}

func (r *rewriter) storeStmt(at ast.Stmt, attr *ast.AttrGetExpr, values ...ast.Expr) ast.Stmt {
	args := append([]ast.Expr{attr.Object, attr.Key}, values...)
	st := &ast.FuncCallStmt{Expr: call(hookStore, at.Line(), args...)}
	st.SetLine(at.Line())
	st.SetLastLine(at.LastLine())
	return st
}

func (r *rewriter) exprs(list []ast.Expr) []ast.Expr {
	for i, e := range list {
		list[i] = r.expr(e)
	}
	return list
}

func (r *rewriter) expr(e ast.Expr) ast.Expr {
	switch x := e.(type) {
	case *ast.StringConcatOpExpr:
		var parts []ast.Expr
		r.flattenConcat(x, &parts)
		return call(hookConcat, x.Line(), parts...)
	case *ast.TableExpr:
		for _, f := range x.Fields {
			if f.Key != nil {
				f.Key = r.expr(f.Key)
			}
			f.Value = r.expr(f.Value)
		}
		return call(hookTable, x.Line(), x)
	case *ast.AttrGetExpr:
		x.Object = r.expr(x.Object)
		x.Key = r.expr(x.Key)
	case *ast.FuncCallExpr:
		if x.Func != nil {
			x.Func = r.expr(x.Func)
		}
		if x.Receiver != nil {
			x.Receiver = r.expr(x.Receiver)
		}
		x.Args = r.exprs(x.Args)
	case *ast.LogicalOpExpr:
		x.Lhs = r.expr(x.Lhs)
		x.Rhs = r.expr(x.Rhs)
	case *ast.RelationalOpExpr:
		x.Lhs = r.expr(x.Lhs)
		x.Rhs = r.expr(x.Rhs)
	case *ast.ArithmeticOpExpr:
		x.Lhs = r.expr(x.Lhs)
		x.Rhs = r.expr(x.Rhs)
	case *ast.UnaryMinusOpExpr:
		x.Expr = r.expr(x.Expr)
	case *ast.UnaryNotOpExpr:
		x.Expr = r.expr(x.Expr)
	case *ast.UnaryLenOpExpr:
		x.Expr = r.expr(x.Expr)
	case *ast.FunctionExpr:
		x.Stmts = r.stmts(x.Stmts)
	}
	return e
}

// flattenConcat collects the operands of a right-associated a .. b .. c
// chain so it is joined once.
func (r *rewriter) flattenConcat(e ast.Expr, parts *[]ast.Expr) {
	if c, ok := e.(*ast.StringConcatOpExpr); ok {
		r.flattenConcat(c.Lhs, parts)
		r.flattenConcat(c.Rhs, parts)
		return
	}
	*parts = append(*parts, r.expr(e))
}

func ident(name string, line int) *ast.IdentExpr {
	id := &ast.IdentExpr{Value: name}
	id.SetLine(line)
	return id
}

func call(hook string, line int, args ...ast.Expr) *ast.FuncCallExpr {
	c := &ast.FuncCallExpr{Func: ident(hook, line), Args: args}
	c.SetLine(line)
	c.SetLastLine(line)
	return c
}
