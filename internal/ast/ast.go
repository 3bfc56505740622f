// Package ast defines the spec-language syntax tree. Nodes are built once
// by the parser/resolver pass and never mutated afterwards; every variant
// exclusively owns its child sequence.
package ast

import "fmt"

// SourceRange locates a node in its originating file. The range survives
// include inlining, so a node spliced in from another file still points at
// that file.
type SourceRange struct {
	File        string
	StartLine   int
	StartCol    int
	EndLine     int
	EndCol      int
	StartOffset int
	EndOffset   int
}

// String renders the start of the range as file:line:col.
func (r SourceRange) String() string {
	return fmt.Sprintf("%s:%d:%d", r.File, r.StartLine, r.StartCol+1)
}

// Combinator expresses a module's nesting relationship to a sibling
// selector. CombinatorNone means ordinary descendant nesting.
type Combinator byte

const (
	CombinatorNone     Combinator = 0
	CombinatorChild    Combinator = '>'
	CombinatorAdjacent Combinator = '+'
	CombinatorSibling  Combinator = '~'
)

// Pseudo is a ":name(args)" annotation on a module selector. Args is the
// raw text between the parentheses, empty when absent.
type Pseudo struct {
	Name string
	Args string
}

// Node is the closed set of AST variants. Traversal, serialization, and
// classification all switch exhaustively over the concrete types.
type Node interface {
	Range() SourceRange
	node()
}

// Root is the top of a parsed document.
type Root struct {
	Children []Node
	Rng      SourceRange
}

// Module is a named block: name[.tag]*[:pseudo(args)]* { children }.
type Module struct {
	Name       string
	Tags       []string
	Pseudos    []Pseudo
	Combinator Combinator
	Children   []Node
	Rng        SourceRange
}

// Prose is free text. Important is reserved for provider-authored
// emphasis; the parser never sets it.
type Prose struct {
	Text      string
	Important bool
	Rng       SourceRange
}

// Include is an unresolved `include path;` statement. The resolver
// replaces these with the target's content.
type Include struct {
	Path string
	Rng  SourceRange
}

// Param is a `name=value;` statement.
type Param struct {
	Name  string
	Value string
	Rng   SourceRange
}

// Comment holds the comment text without its markers.
type Comment struct {
	Text string
	Rng  SourceRange
}

// Constraint is a prose statement flagged with a trailing "!" (plain) or
// "!important" marker; the marker is stripped from Text.
type Constraint struct {
	Text      string
	Important bool
	Rng       SourceRange
}

func (n *Root) Range() SourceRange       { return n.Rng }
func (n *Module) Range() SourceRange     { return n.Rng }
func (n *Prose) Range() SourceRange      { return n.Rng }
func (n *Include) Range() SourceRange    { return n.Rng }
func (n *Param) Range() SourceRange      { return n.Rng }
func (n *Comment) Range() SourceRange    { return n.Rng }
func (n *Constraint) Range() SourceRange { return n.Rng }

func (*Root) node()       {}
func (*Module) node()     {}
func (*Prose) node()      {}
func (*Include) node()    {}
func (*Param) node()      {}
func (*Comment) node()    {}
func (*Constraint) node() {}

// Walk calls fn for node and then, while fn returns true, for every
// descendant in document order.
func Walk(node Node, fn func(Node) bool) {
	if !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Root:
		for _, child := range n.Children {
			Walk(child, fn)
		}
	case *Module:
		for _, child := range n.Children {
			Walk(child, fn)
		}
	case *Prose, *Include, *Param, *Comment, *Constraint:
		// leaves of the syntax tree
	}
}

// ModuleChildren returns the Module nodes directly under node.
func ModuleChildren(node Node) []*Module {
	var children []Node
	switch n := node.(type) {
	case *Root:
		children = n.Children
	case *Module:
		children = n.Children
	default:
		return nil
	}
	var mods []*Module
	for _, child := range children {
		if m, ok := child.(*Module); ok {
			mods = append(mods, m)
		}
	}
	return mods
}
