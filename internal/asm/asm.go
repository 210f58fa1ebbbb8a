// Package asm is the tiny x86-64 intermediate representation the
// code generator targets. It never inspects the AST; it only knows
// how to print itself as GNU-assembler text, the way a teaching
// compiler's generator turns typed instructions into their textual
// form.
package asm

import (
	"fmt"
	"strings"
)

// Reg names a general-purpose 64-bit register used by the generated
// code. Section 9 of the calling convention fixes the role of each.
type Reg string

const (
	RAX Reg = "rax"
	RBX Reg = "rbx"
	RCX Reg = "rcx"
	RDX Reg = "rdx"
	RDI Reg = "rdi"
	RSI Reg = "rsi"
	RSP Reg = "rsp"
	RBP Reg = "rbp"
	R15 Reg = "r15"
)

// Value is an operand: an immediate, a register, or a stack-relative
// memory reference `[rsp - offset]`.
type Value struct {
	kind   valueKind
	imm    int64
	reg    Reg
	offset int
}

type valueKind int

const (
	kindImm valueKind = iota
	kindReg
	kindMem
)

// Imm builds an immediate operand.
func Imm(n int64) Value { return Value{kind: kindImm, imm: n} }

// Register builds a bare-register operand.
func Register(r Reg) Value { return Value{kind: kindReg, reg: r} }

// Mem builds a `[rsp - offset]` stack-slot operand. offset is in
// bytes and is always a multiple of 8.
func Mem(offset int) Value { return Value{kind: kindMem, reg: RSP, offset: offset} }

// RegOffset builds a `[base - offset]` operand against an arbitrary
// base register. The code generator addresses only the stack and does
// not call it.
func RegOffset(base Reg, offset int) Value { return Value{kind: kindMem, reg: base, offset: offset} }

func (v Value) String() string {
	switch v.kind {
	case kindImm:
		return fmt.Sprintf("%d", v.imm)
	case kindReg:
		return string(v.reg)
	case kindMem:
		if v.offset == 0 {
			return fmt.Sprintf("[%s]", v.reg)
		}
		if v.offset > 0 {
			return fmt.Sprintf("[%s - %d]", v.reg, v.offset)
		}
		return fmt.Sprintf("[%s + %d]", v.reg, -v.offset)
	default:
		return "<bad-value>"
	}
}

// LabelKind distinguishes the two shared error targets from an
// ordinary named, per-call-site label.
type LabelKind int

const (
	LabelNamed LabelKind = iota
	LabelTypeError
	LabelOverflow
)

// Label identifies a jump target.
type Label struct {
	Kind LabelKind
	Name string
}

// Named returns an ordinary label carrying the given text verbatim;
// callers are responsible for uniquing it (see codegen's label
// counter).
func Named(name string) Label { return Label{Kind: LabelNamed, Name: name} }

// TypeErrorLabel and OverflowLabel are the two process-wide error targets every
// tag check and arithmetic op may jump to.
var (
	TypeErrorLabel = Label{Kind: LabelTypeError, Name: "type_error"}
	OverflowLabel  = Label{Kind: LabelOverflow, Name: "overflow_error"}
)

func (l Label) String() string {
	switch l.Kind {
	case LabelTypeError:
		return "type_error"
	case LabelOverflow:
		return "overflow_error"
	default:
		return l.Name
	}
}

// Op enumerates the x86-64 mnemonics the code generator emits.
type Op int

const (
	OpMov Op = iota
	OpAdd
	OpSub
	OpIMul
	OpCmp
	OpTest
	OpAnd
	OpOr
	OpXor
	OpSAL
	OpSAR
	OpPush
	OpPop
	OpJmp
	OpJe
	OpJne
	OpJl
	OpJle
	OpJg
	OpJge
	OpJo
	OpCall
	OpRet
	OpLabel
	OpComment
)

// Instr is a single generated instruction. Not every field applies to
// every Op; the zero value of an unused field is simply ignored by
// String.
type Instr struct {
	Op       Op
	Dst      Value
	Src      Value
	Target   Label
	Text     string // OpComment payload, OpCall target name
	hasSrc   bool
	hasDst   bool
	hasLabel bool
}

func mnemonic(op Op) string {
	switch op {
	case OpMov:
		return "mov"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpIMul:
		return "imul"
	case OpCmp:
		return "cmp"
	case OpTest:
		return "test"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpSAL:
		return "sal"
	case OpSAR:
		return "sar"
	case OpJmp:
		return "jmp"
	case OpJe:
		return "je"
	case OpJne:
		return "jne"
	case OpJl:
		return "jl"
	case OpJle:
		return "jle"
	case OpJg:
		return "jg"
	case OpJge:
		return "jge"
	case OpJo:
		return "jo"
	default:
		return "???"
	}
}

// Two builds a two-operand instruction such as mov/add/sub/cmp.
func Two(op Op, dst, src Value) Instr {
	return Instr{Op: op, Dst: dst, Src: src, hasDst: true, hasSrc: true}
}

// Push builds a `push` instruction.
func Push(v Value) Instr { return Instr{Op: OpPush, Dst: v, hasDst: true} }

// Pop builds a `pop` instruction.
func Pop(v Value) Instr { return Instr{Op: OpPop, Dst: v, hasDst: true} }

// Jump builds an unconditional or conditional jump to l.
func Jump(op Op, l Label) Instr { return Instr{Op: op, Target: l, hasLabel: true} }

// Call builds a `call` instruction against a named function symbol.
func Call(name string) Instr { return Instr{Op: OpCall, Text: name} }

// Ret builds a `ret` instruction.
func Ret() Instr { return Instr{Op: OpRet} }

// Def marks a label definition point.
func Def(l Label) Instr { return Instr{Op: OpLabel, Target: l, hasLabel: true} }

// Comment carries a human-readable annotation through to the emitted
// text, the way the teacher's generator prefixes every snippet with a
// `# [OPCODE]` banner.
func Comment(text string) Instr { return Instr{Op: OpComment, Text: text} }

// Emitter turns a flat instruction stream into assembler text.
type Emitter struct {
	program []Instr
}

// NewEmitter builds an Emitter over program.
func NewEmitter(program []Instr) Emitter {
	return Emitter{program: program}
}

// Emit renders the program as GNU-assembler (AT&T-free, Intel-syntax)
// text, one instruction per line.
func (e Emitter) Emit() (string, error) {
	var b strings.Builder

	for _, in := range e.program {
		line, err := e.line(in)
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (e Emitter) line(in Instr) (string, error) {
	switch in.Op {
	case OpComment:
		return "        # " + in.Text, nil
	case OpLabel:
		return in.Target.String() + ":", nil
	case OpPush:
		return fmt.Sprintf("        push %s", in.Dst), nil
	case OpPop:
		return fmt.Sprintf("        pop %s", in.Dst), nil
	case OpRet:
		return "        ret", nil
	case OpCall:
		if in.Text == "" {
			return "", fmt.Errorf("call instruction with empty target")
		}
		return fmt.Sprintf("        call %s", in.Text), nil
	case OpJmp, OpJe, OpJne, OpJl, OpJle, OpJg, OpJge, OpJo:
		return fmt.Sprintf("        %s %s", mnemonic(in.Op), in.Target), nil
	case OpMov, OpAdd, OpSub, OpIMul, OpCmp, OpTest, OpAnd, OpOr, OpXor, OpSAL, OpSAR:
		if !in.hasDst || !in.hasSrc {
			return "", fmt.Errorf("%s instruction missing an operand", mnemonic(in.Op))
		}
		return fmt.Sprintf("        %s %s, %s", mnemonic(in.Op), in.Dst, in.Src), nil
	default:
		return "", fmt.Errorf("unknown instruction opcode %d", in.Op)
	}
}
