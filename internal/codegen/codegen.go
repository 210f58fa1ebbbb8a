// Package codegen lowers a parsed program into the x86-64
// instruction stream internal/asm knows how to print. It is the core
// of the compiler: stack-slot allocation, tagged-value arithmetic with
// overflow and type traps, lexical scoping for let, loop/break label
// management, and the C-style calling convention for user functions
// all live here.
package codegen

import (
	"fmt"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/maps"

	"snekc/internal/asm"
	"snekc/internal/ast"
	"snekc/internal/depth"
	"snekc/internal/value"
)

// Generator holds the state that must survive across every
// definition in a program: the function table (read-only once built)
// and the label counter, which must stay monotonic across the whole
// program so labels never collide between two functions' bodies.
//
// Both are threaded explicitly rather than kept as package-level
// globals, so compiling two programs concurrently (e.g. from tests
// running in parallel) never interferes.
type Generator struct {
	functions *swiss.Map[string, int]
	labels    int64
}

// New builds a Generator whose function table is derived from prog's
// definitions (name -> arity).
func New(prog *ast.Program) *Generator {
	table := swiss.NewMap[string, int](uint32(len(prog.Definitions)))
	for _, def := range prog.Definitions {
		table.Put(def.Name, len(def.Params))
	}
	return &Generator{functions: table}
}

func (g *Generator) nextLabel(prefix string) asm.Label {
	g.labels++
	return asm.Named(fmt.Sprintf("%s_%d", prefix, g.labels))
}

// Program lowers every definition and the terminal expression, and
// appends the two shared trap handlers exactly once.
func (g *Generator) Program(prog *ast.Program) ([]asm.Instr, error) {
	var out []asm.Instr

	for _, def := range prog.Definitions {
		instrs, err := g.definition(def)
		if err != nil {
			return nil, fmt.Errorf("codegen: function %q: %w", def.Name, err)
		}
		out = append(out, instrs...)
	}

	entry, err := g.entry(prog.Terminal)
	if err != nil {
		return nil, fmt.Errorf("codegen: entry expression: %w", err)
	}
	out = append(out, entry...)
	out = append(out, g.traps()...)
	return out, nil
}

func (g *Generator) definition(def ast.Definition) ([]asm.Instr, error) {
	bodyDepth := depth.Of(def.Body)
	frame := depth.Frame(bodyDepth)

	vArgs := make(map[string]int64, len(def.Params))
	for i, p := range def.Params {
		vArgs[p] = int64(i)
	}

	c := ctx{gen: g, env: map[string]int64{}, vArgs: vArgs, dep: frame}

	var out []asm.Instr
	out = append(out, asm.Comment(fmt.Sprintf("function %s/%d", def.Name, len(def.Params))))
	out = append(out, asm.Def(asm.Named(def.Name)))
	out = append(out, asm.Two(asm.OpSub, asm.Register(asm.RSP), asm.Imm(frame*8)))

	body, err := c.lower(def.Body)
	if err != nil {
		return nil, err
	}
	out = append(out, body...)

	out = append(out, asm.Two(asm.OpAdd, asm.Register(asm.RSP), asm.Imm(frame*8)))
	out = append(out, asm.Ret())
	return out, nil
}

func (g *Generator) entry(terminal ast.Expr) ([]asm.Instr, error) {
	frame := depth.Frame(depth.Of(terminal))
	c := ctx{gen: g, env: map[string]int64{}, vArgs: map[string]int64{}, dep: frame}

	var out []asm.Instr
	out = append(out, asm.Comment("program entry"))
	out = append(out, asm.Def(asm.Named("our_code_starts_here")))
	out = append(out, asm.Two(asm.OpSub, asm.Register(asm.RSP), asm.Imm(frame*8)))
	// The heap base arrives in rsi per the C calling convention;
	// stash it in r15 where the ABI with the runtime says it lives,
	// even though this core never dereferences it.
	out = append(out, asm.Two(asm.OpMov, asm.Register(asm.R15), asm.Register(asm.RSI)))

	body, err := c.lower(terminal)
	if err != nil {
		return nil, err
	}
	out = append(out, body...)

	out = append(out, asm.Two(asm.OpAdd, asm.Register(asm.RSP), asm.Imm(frame*8)))
	out = append(out, asm.Ret())
	return out, nil
}

// traps emits the two shared trap sites every tag check and
// arithmetic op may jump to.
func (g *Generator) traps() []asm.Instr {
	return []asm.Instr{
		asm.Def(asm.TypeErrorLabel),
		asm.Two(asm.OpMov, asm.Register(asm.RDI), asm.Imm(value.ErrInvalidArgument)),
		asm.Call("snek_error"),
		asm.Def(asm.OverflowLabel),
		asm.Two(asm.OpMov, asm.Register(asm.RDI), asm.Imm(value.ErrOverflow)),
		asm.Call("snek_error"),
	}
}

// ctx is the per-expression lowering state: si (next free slot),
// env (name -> byte offset from rsp), vArgs (parameter name -> index
// in the caller's pushed-argument region), dep (this function's frame
// depth in slots), and the current break target. It is passed by
// value; extending env or vArgs clones the map first so a sibling
// branch never observes another branch's bindings.
type ctx struct {
	gen        *Generator
	si         int64
	env        map[string]int64
	vArgs      map[string]int64
	dep        int64
	breakLabel *asm.Label
}

func (c ctx) withBinding(name string, offset int64) ctx {
	next := c
	next.env = maps.Clone(c.env)
	next.env[name] = offset
	next.si = c.si + 1
	return next
}

func (c ctx) withBreak(l asm.Label) ctx {
	next := c
	next.breakLabel = &l
	return next
}

func (c ctx) lookup(name string) (offset int64, found bool) {
	if off, ok := c.env[name]; ok {
		return off, true
	}
	if idx, ok := c.vArgs[name]; ok {
		return (idx + c.dep + 1) * 8, true
	}
	return 0, false
}

func (c ctx) lower(e ast.Expr) ([]asm.Instr, error) {
	switch n := e.(type) {
	case ast.Number:
		return []asm.Instr{asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.Encode(n.Value)))}, nil

	case ast.True:
		return []asm.Instr{asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.True))}, nil

	case ast.False:
		return []asm.Instr{asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.False))}, nil

	case ast.Input:
		return []asm.Instr{asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Register(asm.RDI))}, nil

	case ast.Id:
		off, ok := c.lookup(n.Name)
		if !ok {
			return nil, fmt.Errorf("unbound identifier %q", n.Name)
		}
		return []asm.Instr{asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Mem(-int(off)))}, nil

	case ast.Let:
		return c.lowerLet(n)

	case ast.UnOp:
		return c.lowerUnOp(n)

	case ast.BinOp:
		return c.lowerBinOp(n)

	case ast.Set:
		return c.lowerSet(n)

	case ast.If:
		return c.lowerIf(n)

	case ast.Block:
		return c.lowerBlock(n)

	case ast.Loop:
		return c.lowerLoop(n)

	case ast.Break:
		return c.lowerBreak(n)

	case ast.FuncCall:
		return c.lowerFuncCall(n)

	default:
		return nil, fmt.Errorf("codegen: unrecognized AST node %T", e)
	}
}

func (c ctx) lowerLet(n ast.Let) ([]asm.Instr, error) {
	var out []asm.Instr
	cur := c
	for _, b := range n.Bindings {
		init, err := cur.lower(b.Init)
		if err != nil {
			return nil, err
		}
		out = append(out, init...)

		off := cur.si * 8
		out = append(out, asm.Two(asm.OpMov, asm.Mem(-int(off)), asm.Register(asm.RAX)))
		cur = cur.withBinding(b.Name, off)
	}

	body, err := cur.lower(n.Body)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

func (c ctx) lowerUnOp(n ast.UnOp) ([]asm.Instr, error) {
	operand, err := c.lower(n.Operand)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instr{}, operand...)

	switch n.Op {
	case ast.Add1, ast.Sub1:
		out = append(out, checkNumber(asm.Register(asm.RAX))...)
		op := asm.OpAdd
		if n.Op == ast.Sub1 {
			op = asm.OpSub
		}
		out = append(out, asm.Two(op, asm.Register(asm.RAX), asm.Imm(value.Encode(1))))
		out = append(out, asm.Jump(asm.OpJo, asm.OverflowLabel))
		return out, nil

	case ast.IsNum:
		lTrue, lEnd := c.gen.nextLabel("isnum_true"), c.gen.nextLabel("isnum_end")
		out = append(out,
			asm.Two(asm.OpTest, asm.Register(asm.RAX), asm.Imm(1)),
			asm.Jump(asm.OpJe, lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.False)),
			asm.Jump(asm.OpJmp, lEnd),
			asm.Def(lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.True)),
			asm.Def(lEnd),
		)
		return out, nil

	case ast.IsBool:
		lTrue, lEnd := c.gen.nextLabel("isbool_true"), c.gen.nextLabel("isbool_end")
		out = append(out,
			asm.Two(asm.OpMov, asm.Register(asm.RBX), asm.Register(asm.RAX)),
			asm.Two(asm.OpAnd, asm.Register(asm.RBX), asm.Imm(0x3)),
			asm.Two(asm.OpCmp, asm.Register(asm.RBX), asm.Imm(0x3)),
			asm.Jump(asm.OpJe, lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.False)),
			asm.Jump(asm.OpJmp, lEnd),
			asm.Def(lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.True)),
			asm.Def(lEnd),
		)
		return out, nil

	default:
		return nil, fmt.Errorf("codegen: unrecognized unary operator %v", n.Op)
	}
}

// checkNumber emits a type trap for an operand already loaded into v.
func checkNumber(v asm.Value) []asm.Instr {
	return []asm.Instr{
		asm.Two(asm.OpTest, v, asm.Imm(1)),
		asm.Jump(asm.OpJne, asm.TypeErrorLabel),
	}
}

func (c ctx) lowerBinOp(n ast.BinOp) ([]asm.Instr, error) {
	// Right operand first. Its number-ness is checked immediately, while
	// it is still the only operand evaluated, so a type error on the
	// right trips before the left operand (which may itself contain a
	// side effect, e.g. a nested print) ever runs. Equality defers this
	// check: it xor-checks both operands together once both are in hand.
	right, err := c.lower(n.Right)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instr{}, right...)
	if n.Op != ast.Eq {
		out = append(out, checkNumber(asm.Register(asm.RAX))...)
	}

	off := c.si * 8
	out = append(out, asm.Two(asm.OpMov, asm.Mem(-int(off)), asm.Register(asm.RAX)))

	leftCtx := c.withBinding("", off) // anonymous slot reservation, si+1
	left, err := leftCtx.lower(n.Left)
	if err != nil {
		return nil, err
	}
	out = append(out, left...)

	// rax = left, rcx = right (rbx is reserved for equality's xor check).
	out = append(out, asm.Two(asm.OpMov, asm.Register(asm.RCX), asm.Mem(-int(off))))

	switch n.Op {
	case ast.Plus, ast.Minus, ast.Times:
		out = append(out, checkNumber(asm.Register(asm.RAX))...)
		switch n.Op {
		case ast.Plus:
			out = append(out, asm.Two(asm.OpAdd, asm.Register(asm.RAX), asm.Register(asm.RCX)))
		case ast.Minus:
			out = append(out, asm.Two(asm.OpSub, asm.Register(asm.RAX), asm.Register(asm.RCX)))
		case ast.Times:
			out = append(out, asm.Two(asm.OpSAR, asm.Register(asm.RCX), asm.Imm(1)))
			out = append(out, asm.Two(asm.OpIMul, asm.Register(asm.RAX), asm.Register(asm.RCX)))
		}
		out = append(out, asm.Jump(asm.OpJo, asm.OverflowLabel))
		return out, nil

	case ast.Lt, ast.Gt, ast.Le, ast.Ge:
		out = append(out, checkNumber(asm.Register(asm.RAX))...)
		out = append(out, asm.Two(asm.OpCmp, asm.Register(asm.RAX), asm.Register(asm.RCX)))
		var jcc asm.Op
		switch n.Op {
		case ast.Lt:
			jcc = asm.OpJl
		case ast.Gt:
			jcc = asm.OpJg
		case ast.Le:
			jcc = asm.OpJle
		case ast.Ge:
			jcc = asm.OpJge
		}
		lTrue, lEnd := c.gen.nextLabel("cmp_true"), c.gen.nextLabel("cmp_end")
		out = append(out,
			asm.Jump(jcc, lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.False)),
			asm.Jump(asm.OpJmp, lEnd),
			asm.Def(lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.True)),
			asm.Def(lEnd),
		)
		return out, nil

	case ast.Eq:
		lTrue, lEnd := c.gen.nextLabel("eq_true"), c.gen.nextLabel("eq_end")
		out = append(out,
			asm.Two(asm.OpMov, asm.Register(asm.RBX), asm.Register(asm.RAX)),
			asm.Two(asm.OpXor, asm.Register(asm.RBX), asm.Register(asm.RCX)),
			asm.Two(asm.OpTest, asm.Register(asm.RBX), asm.Imm(1)),
			asm.Jump(asm.OpJne, asm.TypeErrorLabel),
			asm.Two(asm.OpCmp, asm.Register(asm.RAX), asm.Register(asm.RCX)),
			asm.Jump(asm.OpJe, lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.False)),
			asm.Jump(asm.OpJmp, lEnd),
			asm.Def(lTrue),
			asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(value.True)),
			asm.Def(lEnd),
		)
		return out, nil

	default:
		return nil, fmt.Errorf("codegen: unrecognized binary operator %v", n.Op)
	}
}

func (c ctx) lowerSet(n ast.Set) ([]asm.Instr, error) {
	off, ok := c.lookup(n.Name)
	if !ok {
		return nil, fmt.Errorf("set!: unbound identifier %q", n.Name)
	}
	val, err := c.lower(n.Value)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instr{}, val...)
	out = append(out, asm.Two(asm.OpMov, asm.Mem(-int(off)), asm.Register(asm.RAX)))
	return out, nil
}

func (c ctx) lowerIf(n ast.If) ([]asm.Instr, error) {
	cond, err := c.lower(n.Cond)
	if err != nil {
		return nil, err
	}
	then, err := c.lower(n.Then)
	if err != nil {
		return nil, err
	}
	els, err := c.lower(n.Else)
	if err != nil {
		return nil, err
	}

	lElse, lEnd := c.gen.nextLabel("if_else"), c.gen.nextLabel("if_end")
	var out []asm.Instr
	out = append(out, cond...)
	out = append(out,
		asm.Two(asm.OpCmp, asm.Register(asm.RAX), asm.Imm(value.False)),
		asm.Jump(asm.OpJe, lElse),
	)
	out = append(out, then...)
	out = append(out, asm.Jump(asm.OpJmp, lEnd), asm.Def(lElse))
	out = append(out, els...)
	out = append(out, asm.Def(lEnd))
	return out, nil
}

func (c ctx) lowerBlock(n ast.Block) ([]asm.Instr, error) {
	var out []asm.Instr
	for _, e := range n.Exprs {
		instrs, err := c.lower(e)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	return out, nil
}

func (c ctx) lowerLoop(n ast.Loop) ([]asm.Instr, error) {
	lHead, lEnd := c.gen.nextLabel("loop_head"), c.gen.nextLabel("loop_end")
	body, err := c.withBreak(lEnd).lower(n.Body)
	if err != nil {
		return nil, err
	}

	var out []asm.Instr
	out = append(out, asm.Def(lHead))
	out = append(out, body...)
	out = append(out, asm.Jump(asm.OpJmp, lHead), asm.Def(lEnd))
	return out, nil
}

func (c ctx) lowerBreak(n ast.Break) ([]asm.Instr, error) {
	if c.breakLabel == nil {
		return nil, fmt.Errorf("break used outside of any loop")
	}
	val, err := c.lower(n.Value)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instr{}, val...)
	out = append(out, asm.Jump(asm.OpJmp, *c.breakLabel))
	return out, nil
}

func (c ctx) lowerFuncCall(n ast.FuncCall) ([]asm.Instr, error) {
	if n.Name == "print" {
		return c.lowerPrint(n)
	}

	arity, known := c.gen.functions.Get(n.Name)
	if !known {
		return nil, fmt.Errorf("call to undefined function %q", n.Name)
	}
	if arity != len(n.Args) {
		return nil, fmt.Errorf("function %q expects %d argument(s), got %d", n.Name, arity, len(n.Args))
	}

	nArgs := len(n.Args)
	var out []asm.Instr
	out = append(out, asm.Two(asm.OpMov, asm.Mem(8), asm.Register(asm.RDI)))

	for i := 0; i < nArgs; i++ {
		arg := n.Args[nArgs-1-i]
		instrs, err := c.lower(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
		out = append(out, asm.Two(asm.OpMov, asm.Mem(16+i*8), asm.Register(asm.RAX)))
	}

	adjust := int64(nArgs*8 + 8)
	out = append(out,
		asm.Two(asm.OpSub, asm.Register(asm.RSP), asm.Imm(adjust)),
		asm.Call(n.Name),
		asm.Two(asm.OpAdd, asm.Register(asm.RSP), asm.Imm(adjust)),
		asm.Two(asm.OpMov, asm.Register(asm.RDI), asm.Mem(8)),
	)
	return out, nil
}

func (c ctx) lowerPrint(n ast.FuncCall) ([]asm.Instr, error) {
	if len(n.Args) != 1 {
		return nil, fmt.Errorf("print expects 1 argument, got %d", len(n.Args))
	}
	arg, err := c.lower(n.Args[0])
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instr{}, arg...)
	out = append(out,
		asm.Two(asm.OpMov, asm.Register(asm.RDI), asm.Register(asm.RAX)),
		asm.Push(asm.Register(asm.RDI)),
		asm.Push(asm.Register(asm.RAX)),
		asm.Call("snek_print"),
		asm.Two(asm.OpAdd, asm.Register(asm.RSP), asm.Imm(16)),
	)
	return out, nil
}
