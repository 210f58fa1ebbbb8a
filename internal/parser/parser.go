// Package parser turns the generic forest produced by internal/sexpr
// into the compiler's typed internal/ast.Program, performing every
// keyword, arity, and name-binding check the language requires.
package parser

import (
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/exp/maps"

	"snekc/internal/ast"
	"snekc/internal/sexpr"
	"snekc/internal/value"
)

// Position is a small source-location marker. Unlike
// mna-nenuphar's token.Pos/token.File pair, a single-file,
// parenthesised-syntax language only ever needs a form index, not a
// byte offset resolved against a line table.
type Position struct {
	Form int // index of the top-level form this error occurred within
}

func (p Position) String() string {
	return fmt.Sprintf("form #%d", p.Form)
}

// ParseError reports a compile-time failure with the offending
// top-level form's position, per spec section 7's first taxonomy.
type ParseError struct {
	Pos Position
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func errAt(form int, format string, args ...interface{}) error {
	return &ParseError{Pos: Position{Form: form}, Msg: fmt.Sprintf(format, args...)}
}

var unaryOps = map[string]ast.UnOpKind{
	"add1": ast.Add1, "sub1": ast.Sub1, "isnum": ast.IsNum, "isbool": ast.IsBool,
}

var binaryOps = map[string]ast.BinOpKind{
	"+": ast.Plus, "-": ast.Minus, "*": ast.Times,
	"<": ast.Lt, ">": ast.Gt, "<=": ast.Le, ">=": ast.Ge, "=": ast.Eq,
}

// Parse wraps src in an outer pair of parens, reads it as a single
// s-expression, and walks the result into a Program.
func Parse(src string) (*ast.Program, error) {
	root, err := sexpr.Read("(" + src + ")")
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	if !root.IsList {
		return nil, fmt.Errorf("parser: expected a program, got a bare atom %q", root.Atom)
	}

	p := &parseState{functions: make(map[string]int)}
	return p.program(root.Children)
}

type parseState struct {
	functions map[string]int // name -> arity, built incrementally as definitions are seen
}

func (p *parseState) program(forms []sexpr.Node) (*ast.Program, error) {
	if len(forms) == 0 {
		return nil, fmt.Errorf("parser: empty program")
	}

	// Function calls may reference a function defined later in the
	// source (scenario 5's mutually-recursive even/odd), so every
	// signature is registered before any body is walked.
	signatures := make([]*signature, len(forms))
	for i, form := range forms {
		if !isFunDef(form) {
			continue
		}
		sig, err := p.registerSignature(form, i)
		if err != nil {
			return nil, err
		}
		signatures[i] = sig
	}

	prog := &ast.Program{}
	for i, form := range forms {
		if isFunDef(form) {
			if i == len(forms)-1 {
				return nil, errAt(i, "program must end with a terminal expression, not a definition")
			}
			def, err := p.definitionBody(signatures[i], form, i)
			if err != nil {
				return nil, err
			}
			prog.Definitions = append(prog.Definitions, *def)
			continue
		}

		// First non-definition form must be the last form.
		if i != len(forms)-1 {
			return nil, errAt(i, "unexpected form before the terminal expression")
		}
		terminal, err := p.expr(form, i)
		if err != nil {
			return nil, err
		}
		prog.Terminal = terminal
		return prog, nil
	}

	return nil, errAt(len(forms)-1, "program must end with a terminal expression")
}

func isFunDef(form sexpr.Node) bool {
	return form.IsList && len(form.Children) > 0 && !form.Children[0].IsList && form.Children[0].Atom == "fun"
}

// signature holds a definition's already-validated name and
// parameter list, produced by registerSignature and consumed by
// definitionBody once every function name in the program is known.
type signature struct {
	name   string
	params []string
	body   sexpr.Node
}

func (p *parseState) registerSignature(form sexpr.Node, formIdx int) (*signature, error) {
	// (fun (name param...) body)
	children := form.Children
	if len(children) != 3 {
		return nil, errAt(formIdx, "fun requires a name-and-params list and exactly one body expression, got %d forms", len(children)-1)
	}
	sig := children[1]
	if !sig.IsList || len(sig.Children) == 0 {
		return nil, errAt(formIdx, "fun's second form must be a non-empty (name param...) list")
	}
	for _, s := range sig.Children {
		if s.IsList {
			return nil, errAt(formIdx, "fun's name and parameters must be symbols")
		}
	}

	name := sig.Children[0].Atom
	if ast.IsReserved(name) {
		return nil, errAt(formIdx, "function name %q is a reserved keyword", name)
	}
	if _, dup := p.functions[name]; dup {
		existing := maps.Keys(p.functions)
		sort.Strings(existing)
		return nil, errAt(formIdx, "function %q is already defined (known functions: %v)", name, existing)
	}

	params := make([]string, 0, len(sig.Children)-1)
	seen := make(map[string]bool)
	for _, s := range sig.Children[1:] {
		pname := s.Atom
		if ast.IsReserved(pname) {
			return nil, errAt(formIdx, "parameter name %q is a reserved keyword", pname)
		}
		if seen[pname] {
			return nil, errAt(formIdx, "duplicate parameter name %q", pname)
		}
		seen[pname] = true
		params = append(params, pname)
	}

	p.functions[name] = len(params)
	return &signature{name: name, params: params, body: children[2]}, nil
}

func (p *parseState) definitionBody(sig *signature, form sexpr.Node, formIdx int) (*ast.Definition, error) {
	body, err := p.expr(sig.body, formIdx)
	if err != nil {
		return nil, err
	}
	return &ast.Definition{Name: sig.name, Params: sig.params, Body: body}, nil
}

func (p *parseState) expr(n sexpr.Node, formIdx int) (ast.Expr, error) {
	if !n.IsList {
		return p.atom(n.Atom, formIdx)
	}
	if len(n.Children) == 0 {
		return nil, errAt(formIdx, "empty list is not a valid expression")
	}

	head := n.Children[0]
	if head.IsList {
		return nil, errAt(formIdx, "a call or special form must begin with a symbol, not a nested list")
	}
	args := n.Children[1:]

	switch head.Atom {
	case "let":
		return p.parseLet(args, formIdx)
	case "set!":
		return p.parseSet(args, formIdx)
	case "if":
		return p.parseIf(args, formIdx)
	case "block":
		return p.parseBlock(args, formIdx)
	case "loop":
		return p.parseLoop(args, formIdx)
	case "break":
		return p.parseBreak(args, formIdx)
	case "fun":
		return nil, errAt(formIdx, "fun is only valid as a top-level form")
	case "print":
		return p.parseCall("print", args, formIdx, 1)
	default:
		if op, ok := unaryOps[head.Atom]; ok {
			return p.parseUnOp(op, args, formIdx)
		}
		if op, ok := binaryOps[head.Atom]; ok {
			return p.parseBinOp(op, args, formIdx)
		}
		return p.parseUserCall(head.Atom, args, formIdx)
	}
}

func (p *parseState) atom(text string, formIdx int) (ast.Expr, error) {
	switch text {
	case "true":
		return ast.True{}, nil
	case "false":
		return ast.False{}, nil
	case "input":
		return ast.Input{}, nil
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if !value.InRange(n) {
			return nil, errAt(formIdx, "integer literal %d is outside the representable range [%d, %d)", n, value.MinInt, value.MaxInt+1)
		}
		return ast.Number{Value: n}, nil
	}

	if ast.IsReserved(text) {
		return nil, errAt(formIdx, "%q is a reserved keyword and cannot be used as an identifier", text)
	}
	return ast.Id{Name: text}, nil
}

func (p *parseState) parseLet(args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 2 {
		return nil, errAt(formIdx, "let requires a binding list and a body, got %d forms", len(args))
	}
	bindForm := args[0]
	if !bindForm.IsList || len(bindForm.Children) == 0 {
		return nil, errAt(formIdx, "let's binding list must be non-empty")
	}

	seen := make(map[string]bool)
	bindings := make([]ast.Binding, 0, len(bindForm.Children))
	for _, b := range bindForm.Children {
		if !b.IsList || len(b.Children) != 2 || b.Children[0].IsList {
			return nil, errAt(formIdx, "each let binding must be a (name expr) pair")
		}
		name := b.Children[0].Atom
		if ast.IsReserved(name) {
			return nil, errAt(formIdx, "%q is a reserved keyword and cannot be bound by let", name)
		}
		if seen[name] {
			return nil, errAt(formIdx, "duplicate let binding for %q", name)
		}
		seen[name] = true

		init, err := p.expr(b.Children[1], formIdx)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, ast.Binding{Name: name, Init: init})
	}

	body, err := p.expr(args[1], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.Let{Bindings: bindings, Body: body}, nil
}

func (p *parseState) parseSet(args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 2 || args[0].IsList {
		return nil, errAt(formIdx, "set! requires a bare identifier and a value expression")
	}
	name := args[0].Atom
	if ast.IsReserved(name) {
		return nil, errAt(formIdx, "%q is a reserved keyword and cannot be assigned with set!", name)
	}
	val, err := p.expr(args[1], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.Set{Name: name, Value: val}, nil
}

func (p *parseState) parseIf(args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 3 {
		return nil, errAt(formIdx, "if requires exactly three forms (condition, then, else), got %d", len(args))
	}
	cond, err := p.expr(args[0], formIdx)
	if err != nil {
		return nil, err
	}
	then, err := p.expr(args[1], formIdx)
	if err != nil {
		return nil, err
	}
	els, err := p.expr(args[2], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.If{Cond: cond, Then: then, Else: els}, nil
}

func (p *parseState) parseBlock(args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) == 0 {
		return nil, errAt(formIdx, "block requires a non-empty body")
	}
	exprs := make([]ast.Expr, 0, len(args))
	for _, a := range args {
		e, err := p.expr(a, formIdx)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return ast.Block{Exprs: exprs}, nil
}

func (p *parseState) parseLoop(args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 1 {
		return nil, errAt(formIdx, "loop requires exactly one body expression, got %d", len(args))
	}
	body, err := p.expr(args[0], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.Loop{Body: body}, nil
}

func (p *parseState) parseBreak(args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 1 {
		return nil, errAt(formIdx, "break requires exactly one value expression, got %d", len(args))
	}
	val, err := p.expr(args[0], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.Break{Value: val}, nil
}

func (p *parseState) parseUnOp(op ast.UnOpKind, args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 1 {
		return nil, errAt(formIdx, "%s requires exactly one operand, got %d", op, len(args))
	}
	operand, err := p.expr(args[0], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.UnOp{Op: op, Operand: operand}, nil
}

func (p *parseState) parseBinOp(op ast.BinOpKind, args []sexpr.Node, formIdx int) (ast.Expr, error) {
	if len(args) != 2 {
		return nil, errAt(formIdx, "%s requires exactly two operands, got %d", op, len(args))
	}
	left, err := p.expr(args[0], formIdx)
	if err != nil {
		return nil, err
	}
	right, err := p.expr(args[1], formIdx)
	if err != nil {
		return nil, err
	}
	return ast.BinOp{Op: op, Left: left, Right: right}, nil
}

func (p *parseState) parseCall(name string, args []sexpr.Node, formIdx int, arity int) (ast.Expr, error) {
	if len(args) != arity {
		return nil, errAt(formIdx, "%s expects %d argument(s), got %d", name, arity, len(args))
	}
	exprs, err := p.exprList(args, formIdx)
	if err != nil {
		return nil, err
	}
	return ast.FuncCall{Name: name, Args: exprs}, nil
}

func (p *parseState) parseUserCall(name string, args []sexpr.Node, formIdx int) (ast.Expr, error) {
	arity, known := p.functions[name]
	if !known {
		return nil, errAt(formIdx, "call to undefined function %q", name)
	}
	if len(args) != arity {
		return nil, errAt(formIdx, "function %q expects %d argument(s), got %d", name, arity, len(args))
	}
	exprs, err := p.exprList(args, formIdx)
	if err != nil {
		return nil, err
	}
	return ast.FuncCall{Name: name, Args: exprs}, nil
}

func (p *parseState) exprList(forms []sexpr.Node, formIdx int) ([]ast.Expr, error) {
	out := make([]ast.Expr, 0, len(forms))
	for _, f := range forms {
		e, err := p.expr(f, formIdx)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
