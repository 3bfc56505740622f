// Package lexer converts raw spec text into a token stream with source
// locations. Scanning is cursor-based and never aborts: malformed input
// (an unterminated string, comment, or code block) records an Error, emits
// the partial token, and continues.
package lexer

import "strings"

// KeywordInclude is the only reserved identifier in the language.
const KeywordInclude = "include"

// cursor is a mutable position over a single source string. All scanning
// functions advance it; line and column are maintained on every byte.
type cursor struct {
	src  string
	file string
	off  int
	line int
	col  int
}

func (c *cursor) eof() bool { return c.off >= len(c.src) }

func (c *cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.src[c.off]
}

func (c *cursor) peekAt(n int) byte {
	if c.off+n >= len(c.src) {
		return 0
	}
	return c.src[c.off+n]
}

func (c *cursor) advance() byte {
	ch := c.src[c.off]
	c.off++
	if ch == '\n' {
		c.line++
		c.col = 0
	} else {
		c.col++
	}
	return ch
}

func (c *cursor) pos() Pos {
	return Pos{File: c.file, Line: c.line, Col: c.col, Offset: c.off}
}

func (c *cursor) slice(from int) string { return c.src[from:c.off] }

// hasPrefix reports whether the unconsumed source starts with s.
func (c *cursor) hasPrefix(s string) bool {
	return strings.HasPrefix(c.src[c.off:], s)
}

// Tokenize scans source into tokens. The returned slice always ends with
// an EOF token, and errs collects every recoverable lexing error in
// source order.
func Tokenize(source, filename string) (tokens []Token, errs []*Error) {
	c := &cursor{src: source, file: filename, line: 1}

	emit := func(kind Kind, start Pos) {
		tokens = append(tokens, Token{Kind: kind, Text: c.slice(start.Offset), Pos: start})
	}
	fail := func(msg string, at Pos) {
		errs = append(errs, &Error{Msg: msg, Pos: at})
	}

	for !c.eof() {
		start := c.pos()
		ch := c.peek()

		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			for !c.eof() {
				if b := c.peek(); b == ' ' || b == '\t' || b == '\r' {
					c.advance()
					continue
				}
				break
			}
			emit(Whitespace, start)

		case ch == '\n':
			c.advance()
			emit(Newline, start)

		case c.hasPrefix("/*"):
			c.advance()
			c.advance()
			terminated := false
			for !c.eof() {
				if c.hasPrefix("*/") {
					c.advance()
					c.advance()
					terminated = true
					break
				}
				c.advance()
			}
			if !terminated {
				fail("unterminated block comment", start)
			}
			emit(CommentBlock, start)

		case c.hasPrefix("//") || ch == '#':
			for !c.eof() && c.peek() != '\n' {
				c.advance()
			}
			emit(CommentLine, start)

		case c.hasPrefix("```"):
			c.advance()
			c.advance()
			c.advance()
			terminated := false
			for !c.eof() {
				if c.hasPrefix("```") {
					c.advance()
					c.advance()
					c.advance()
					terminated = true
					break
				}
				c.advance()
			}
			if !terminated {
				fail("unterminated code fence", start)
			}
			emit(CodeFence, start)

		case ch == '`':
			c.advance()
			terminated := false
			for !c.eof() && c.peek() != '\n' {
				if c.advance() == '`' {
					terminated = true
					break
				}
			}
			if !terminated {
				fail("unterminated inline code", start)
			}
			emit(CodeInline, start)

		case ch == '"':
			c.advance()
			terminated := false
			for !c.eof() {
				b := c.advance()
				if b == '\\' && !c.eof() {
					c.advance()
					continue
				}
				if b == '"' {
					terminated = true
					break
				}
			}
			if !terminated {
				fail("unterminated string", start)
			}
			emit(String, start)

		case ch == '{':
			c.advance()
			emit(BraceOpen, start)
		case ch == '}':
			c.advance()
			emit(BraceClose, start)
		case ch == ';':
			c.advance()
			emit(Semicolon, start)
		case ch == '=':
			c.advance()
			emit(Equals, start)

		case isDigit(ch):
			sawDot := false
			for !c.eof() {
				b := c.peek()
				if isDigit(b) {
					c.advance()
					continue
				}
				if b == '.' && !sawDot && isDigit(c.peekAt(1)) {
					sawDot = true
					c.advance()
					continue
				}
				break
			}
			emit(Number, start)

		case isIdentStart(ch):
			for !c.eof() && isIdentPart(c.peek()) {
				c.advance()
			}
			if c.slice(start.Offset) == KeywordInclude {
				emit(Keyword, start)
			} else {
				emit(Ident, start)
			}

		default:
			// Prose fallback: consume up to the next structural character,
			// comment start, backtick, quote, or whitespace. Always makes
			// progress by at least one byte.
			c.advance()
			for !c.eof() && !isProseStop(c) {
				c.advance()
			}
			emit(Text, start)
		}
	}

	tokens = append(tokens, Token{Kind: EOF, Pos: c.pos()})
	return tokens, errs
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || isDigit(b) || b == '-'
}

// isProseStop reports whether the cursor sits on a boundary that ends a
// prose chunk.
func isProseStop(c *cursor) bool {
	switch c.peek() {
	case ' ', '\t', '\r', '\n', '{', '}', ';', '=', '"', '`', '#':
		return true
	}
	return c.hasPrefix("//") || c.hasPrefix("/*")
}
