// Package parser builds the spec AST from a token stream by recursive
// descent. A block is a sequence of statements ended by a closing brace
// or end of input; parsing is best-effort: structural errors are
// collected and whatever nodes were built are still returned.
package parser

import (
	"fmt"
	"strings"

	"github.com/towc/aidef-sub001/internal/ast"
	"github.com/towc/aidef-sub001/internal/lexer"
)

// Error is a parse error with the source position it was detected at.
type Error struct {
	Msg string
	Pos lexer.Pos
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

type parser struct {
	toks []lexer.Token
	pos  int
	file string
	errs []*Error
}

// Parse consumes tokens (as produced by lexer.Tokenize, EOF-terminated)
// and returns the document root plus all collected errors.
func Parse(tokens []lexer.Token, filename string) (*ast.Root, []*Error) {
	p := &parser{toks: tokens, file: filename}
	children := p.parseBlock(false)
	root := &ast.Root{Children: children, Rng: p.fileRange()}
	return root, p.errs
}

func (p *parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool       { return p.cur().Kind == lexer.EOF }
func (p *parser) next() lexer.Token { t := p.cur(); p.advance(); return t }

func (p *parser) advance() {
	if !p.atEOF() {
		p.pos++
	}
}

func (p *parser) skipBlank() {
	for {
		switch p.cur().Kind {
		case lexer.Whitespace, lexer.Newline:
			p.advance()
		default:
			return
		}
	}
}

func (p *parser) fail(msg string, at lexer.Pos) {
	p.errs = append(p.errs, &Error{Msg: msg, Pos: at})
}

// parseBlock parses statements until EOF or, when insideBraces, a closing
// brace (left for the caller to consume).
func (p *parser) parseBlock(insideBraces bool) []ast.Node {
	var nodes []ast.Node
	for {
		p.skipBlank()
		tok := p.cur()
		switch tok.Kind {
		case lexer.EOF:
			return nodes
		case lexer.BraceClose:
			if insideBraces {
				return nodes
			}
			p.fail("unexpected '}'", tok.Pos)
			p.advance()
		case lexer.CommentLine, lexer.CommentBlock:
			p.advance()
			nodes = append(nodes, &ast.Comment{
				Text: commentText(tok),
				Rng:  p.tokenRange(tok, tok),
			})
		case lexer.Keyword:
			if inc := p.parseInclude(); inc != nil {
				nodes = append(nodes, inc)
			}
		default:
			if node := p.parseStatement(); node != nil {
				nodes = append(nodes, node)
			}
		}
	}
}

// parseStatement disambiguates param / module / prose by bounded
// lookahead within the logical line.
func (p *parser) parseStatement() ast.Node {
	if p.cur().Kind == lexer.Ident && p.peekAfterSpace().Kind == lexer.Equals {
		return p.parseParam()
	}

	// Find what ends this statement: the first structural boundary.
	j := p.pos
	for {
		switch p.toks[j].Kind {
		case lexer.BraceOpen:
			return p.parseModule(j)
		case lexer.Semicolon, lexer.Newline, lexer.BraceClose, lexer.EOF:
			return p.parseProse(j)
		}
		j++
	}
}

func (p *parser) peekAfterSpace() lexer.Token {
	i := p.pos + 1
	for p.toks[i].Kind == lexer.Whitespace {
		i++
	}
	return p.toks[i]
}

// parseModule parses `selector { … }` where braceIdx points at the
// opening brace token.
func (p *parser) parseModule(braceIdx int) ast.Node {
	first := p.cur()
	var raw strings.Builder
	for p.pos < braceIdx {
		raw.WriteString(p.next().Text)
	}
	bracePos := p.cur().Pos
	p.advance() // consume '{'

	name, tags, pseudos, comb, ok := parseSelector(strings.TrimSpace(raw.String()))
	if !ok {
		p.fail(fmt.Sprintf("invalid module selector %q", strings.TrimSpace(raw.String())), first.Pos)
	}

	children := p.parseBlock(true)
	end := p.cur()
	if end.Kind == lexer.BraceClose {
		p.advance()
	} else {
		p.fail("unterminated block: missing '}'", bracePos)
	}

	return &ast.Module{
		Name:       name,
		Tags:       tags,
		Pseudos:    pseudos,
		Combinator: comb,
		Children:   children,
		Rng:        p.tokenRange(first, end),
	}
}

// parseProse collects tokens up to endIdx into a single statement,
// classifying trailing "!"/"!important" markers as constraints.
func (p *parser) parseProse(endIdx int) ast.Node {
	first := p.cur()
	var b strings.Builder
	last := first
	for p.pos < endIdx {
		tok := p.next()
		if tok.Kind == lexer.Whitespace {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(tok.Text)
		last = tok
	}
	// Consume a ';' or newline terminator; '}' stays for the block.
	switch p.cur().Kind {
	case lexer.Semicolon, lexer.Newline:
		last = p.next()
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil
	}
	rng := p.tokenRange(first, last)

	if trimmed, ok := strings.CutSuffix(text, "!important"); ok {
		return &ast.Constraint{Text: strings.TrimSpace(trimmed), Important: true, Rng: rng}
	}
	if trimmed, ok := strings.CutSuffix(text, "!"); ok && strings.TrimSpace(trimmed) != "" {
		return &ast.Constraint{Text: strings.TrimSpace(trimmed), Rng: rng}
	}
	return &ast.Prose{Text: text, Rng: rng}
}

func (p *parser) parseInclude() ast.Node {
	first := p.next() // `include`
	p.skipSpaces()

	var b strings.Builder
	last := first
	for {
		tok := p.cur()
		switch tok.Kind {
		case lexer.Semicolon, lexer.Newline, lexer.EOF, lexer.BraceClose:
			goto done
		case lexer.Whitespace:
			p.advance()
		case lexer.String:
			b.WriteString(unquote(tok.Text))
			last = p.next()
		default:
			b.WriteString(tok.Text)
			last = p.next()
		}
	}
done:
	if p.cur().Kind == lexer.Semicolon {
		last = p.next()
	}
	path := strings.TrimSpace(b.String())
	if path == "" {
		p.fail("include statement missing path", first.Pos)
		return nil
	}
	return &ast.Include{Path: path, Rng: p.tokenRange(first, last)}
}

func (p *parser) parseParam() ast.Node {
	first := p.next() // name
	p.skipSpaces()
	p.advance() // '='
	p.skipSpaces()

	var b strings.Builder
	last := first
	for {
		tok := p.cur()
		if tok.Kind == lexer.Semicolon || tok.Kind == lexer.Newline ||
			tok.Kind == lexer.EOF || tok.Kind == lexer.BraceClose {
			break
		}
		if tok.Kind == lexer.String {
			b.WriteString(unquote(tok.Text))
		} else {
			b.WriteString(tok.Text)
		}
		last = p.next()
	}
	if p.cur().Kind == lexer.Semicolon || p.cur().Kind == lexer.Newline {
		last = p.next()
	}
	return &ast.Param{
		Name:  first.Text,
		Value: strings.TrimSpace(b.String()),
		Rng:   p.tokenRange(first, last),
	}
}

func (p *parser) skipSpaces() {
	for p.cur().Kind == lexer.Whitespace {
		p.advance()
	}
}

func (p *parser) tokenRange(first, last lexer.Token) ast.SourceRange {
	return ast.SourceRange{
		File:        p.file,
		StartLine:   first.Pos.Line,
		StartCol:    first.Pos.Col,
		EndLine:     last.Pos.Line,
		EndCol:      last.Pos.Col + len(last.Text),
		StartOffset: first.Pos.Offset,
		EndOffset:   last.Pos.Offset + len(last.Text),
	}
}

func (p *parser) fileRange() ast.SourceRange {
	if len(p.toks) == 0 {
		return ast.SourceRange{File: p.file, StartLine: 1, EndLine: 1}
	}
	first, last := p.toks[0], p.toks[len(p.toks)-1]
	return ast.SourceRange{
		File:      p.file,
		StartLine: first.Pos.Line,
		StartCol:  first.Pos.Col,
		EndLine:   last.Pos.Line,
		EndCol:    last.Pos.Col,
		EndOffset: last.Pos.Offset,
	}
}

func commentText(tok lexer.Token) string {
	text := tok.Text
	switch {
	case strings.HasPrefix(text, "/*"):
		text = strings.TrimPrefix(text, "/*")
		text = strings.TrimSuffix(text, "*/")
	case strings.HasPrefix(text, "//"):
		text = strings.TrimPrefix(text, "//")
	case strings.HasPrefix(text, "#"):
		text = strings.TrimPrefix(text, "#")
	}
	return strings.TrimSpace(text)
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// parseSelector splits a module header into its parts:
// [combinator] name[.tag]*[:pseudo(args)]*.
func parseSelector(raw string) (name string, tags []string, pseudos []ast.Pseudo, comb ast.Combinator, ok bool) {
	s := raw
	if len(s) > 0 {
		switch s[0] {
		case '>', '+', '~':
			comb = ast.Combinator(s[0])
			s = strings.TrimSpace(s[1:])
		}
	}

	i := 0
	for i < len(s) && isSelectorIdent(s[i]) {
		i++
	}
	name = s[:i]
	if name == "" {
		return raw, nil, nil, comb, false
	}

	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			start := i
			for i < len(s) && isSelectorIdent(s[i]) {
				i++
			}
			if start == i {
				return name, tags, pseudos, comb, false
			}
			tags = append(tags, s[start:i])
		case ':':
			i++
			start := i
			for i < len(s) && isSelectorIdent(s[i]) {
				i++
			}
			if start == i {
				return name, tags, pseudos, comb, false
			}
			pseudo := ast.Pseudo{Name: s[start:i]}
			if i < len(s) && s[i] == '(' {
				close := strings.IndexByte(s[i:], ')')
				if close < 0 {
					return name, tags, pseudos, comb, false
				}
				pseudo.Args = s[i+1 : i+close]
				i += close + 1
			}
			pseudos = append(pseudos, pseudo)
		default:
			return name, tags, pseudos, comb, false
		}
	}
	return name, tags, pseudos, comb, true
}

func isSelectorIdent(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') || b == '_' || b == '-'
}
