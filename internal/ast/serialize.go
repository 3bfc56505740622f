package ast

import (
	"fmt"
	"strings"
)

const indentUnit = "  "

// Serialize reproduces canonical spec text for a node: selector line,
// opening brace, two-space-indented body, closing brace. Compiled
// sub-nodes are re-serialized with this to hand to the provider and to
// persist as spec artifacts.
func Serialize(node Node) string {
	var b strings.Builder
	writeNode(&b, node, 0)
	return b.String()
}

func writeNode(b *strings.Builder, node Node, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	switch n := node.(type) {
	case *Root:
		for _, child := range n.Children {
			writeNode(b, child, depth)
		}
	case *Module:
		b.WriteString(indent)
		b.WriteString(selector(n))
		b.WriteString(" {\n")
		for _, child := range n.Children {
			writeNode(b, child, depth+1)
		}
		b.WriteString(indent)
		b.WriteString("}\n")
	case *Prose:
		b.WriteString(indent)
		b.WriteString(n.Text)
		b.WriteString("\n")
	case *Include:
		fmt.Fprintf(b, "%sinclude %s;\n", indent, n.Path)
	case *Param:
		fmt.Fprintf(b, "%s%s=%s;\n", indent, n.Name, n.Value)
	case *Comment:
		fmt.Fprintf(b, "%s// %s\n", indent, n.Text)
	case *Constraint:
		marker := "!"
		if n.Important {
			marker = "!important"
		}
		fmt.Fprintf(b, "%s%s %s\n", indent, n.Text, marker)
	}
}

// selector renders a module's header without the trailing brace.
func selector(m *Module) string {
	var b strings.Builder
	if m.Combinator != CombinatorNone {
		b.WriteByte(byte(m.Combinator))
		b.WriteByte(' ')
	}
	b.WriteString(m.Name)
	for _, tag := range m.Tags {
		b.WriteByte('.')
		b.WriteString(tag)
	}
	for _, p := range m.Pseudos {
		b.WriteByte(':')
		b.WriteString(p.Name)
		if p.Args != "" {
			b.WriteByte('(')
			b.WriteString(p.Args)
			b.WriteByte(')')
		}
	}
	return b.String()
}
