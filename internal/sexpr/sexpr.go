// Package sexpr turns source text into a generic, untyped
// s-expression tree: a thin layer over goparsec's AST that the parser
// package then walks into the compiler's own ast.Program. Keeping this
// step separate means the grammar (parens, atoms, tokens) lives apart
// from the language's keyword semantics.
package sexpr

import (
	"fmt"

	pc "github.com/prataprc/goparsec"
)

// Node is one s-expression: either an Atom (a bare token such as a
// number, identifier, or operator) or a parenthesized List of child
// Nodes.
type Node struct {
	Atom     string
	Children []Node
	IsList   bool
}

// String renders n back to source-ish text, used only in error
// messages.
func (n Node) String() string {
	if !n.IsList {
		return n.Atom
	}
	s := "("
	for i, c := range n.Children {
		if i > 0 {
			s += " "
		}
		s += c.String()
	}
	return s + ")"
}

var forest = pc.NewAST("sexpr", 100)

// pSexpr is self-referential (a list's children are themselves
// sexprs), so it can't be built as a single eager expression: the
// combinator constructors evaluate their arguments when called, and
// Go won't let a var's initializer reference itself. lazySexpr
// indirects through the not-yet-assigned pSexpr variable, and is
// itself what pList's Kleene is given; by the time lazySexpr
// actually runs, init() below has finished and pSexpr is set.
var pSexpr pc.Parser

func lazySexpr(s pc.Scanner) (pc.ParsecNode, pc.Scanner) {
	return pSexpr(s)
}

var (
	pAtomTok = pc.Token(`[^\s()]+`, "ATOM")
	pList    = forest.And("list", nil, pc.Atom("(", "LPAREN"),
		forest.Kleene("items", nil, lazySexpr), pc.Atom(")", "RPAREN"))
	pAtom = forest.And("atom", nil, pAtomTok)
)

func init() {
	pSexpr = forest.OrdChoice("sexpr", nil, pList, pAtom)
}

// Read parses src as a single top-level s-expression and returns its
// tree. Callers wrap a program's sequence of top-level forms in an
// outer pair of parens before calling Read, so src must already
// denote exactly one list.
func Read(src string) (Node, error) {
	root, _ := forest.Parsewith(pSexpr, pc.NewScanner([]byte(src)))
	if root == nil {
		return Node{}, fmt.Errorf("sexpr: failed to parse input")
	}

	q, ok := root.(pc.Queryable)
	if !ok {
		return Node{}, fmt.Errorf("sexpr: parser produced a non-queryable node")
	}
	return toNode(q)
}

func toNode(q pc.Queryable) (Node, error) {
	switch q.GetName() {
	case "atom":
		children := q.GetChildren()
		if len(children) != 1 {
			return Node{}, fmt.Errorf("sexpr: malformed atom node")
		}
		return Node{Atom: children[0].GetValue()}, nil

	case "list":
		var items []Node
		for _, child := range q.GetChildren() {
			switch child.GetName() {
			case "LPAREN", "RPAREN":
				continue
			case "items":
				for _, inner := range child.GetChildren() {
					cq, ok := inner.(pc.Queryable)
					if !ok {
						return Node{}, fmt.Errorf("sexpr: non-queryable list item")
					}
					n, err := toNode(cq)
					if err != nil {
						return Node{}, err
					}
					items = append(items, n)
				}
			default:
				cq, ok := child.(pc.Queryable)
				if !ok {
					return Node{}, fmt.Errorf("sexpr: non-queryable list item")
				}
				n, err := toNode(cq)
				if err != nil {
					return Node{}, err
				}
				items = append(items, n)
			}
		}
		return Node{IsList: true, Children: items}, nil

	default:
		return Node{}, fmt.Errorf("sexpr: unrecognized node %q", q.GetName())
	}
}
