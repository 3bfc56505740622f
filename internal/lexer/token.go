package lexer

import "fmt"

// Kind identifies the lexical class of a token.
type Kind int

const (
	// EOF is always the final token of a stream.
	EOF Kind = iota

	Whitespace // run of spaces/tabs, never includes newlines
	Newline    // a single '\n'

	CommentLine  // "// …" or "# …" up to end of line
	CommentBlock // "/* … */"

	CodeFence  // triple-backtick fenced block, captured verbatim
	CodeInline // single-backtick inline code

	String // double-quoted, backslash escapes, may span lines

	BraceOpen  // "{"
	BraceClose // "}"
	Semicolon  // ";"
	Equals     // "="

	Number  // digits with an optional single decimal point
	Ident   // letter/underscore start, letters/digits/_/- continuation
	Keyword // the literal "include"

	Text // prose fallback, word-sized chunks
)

var kindNames = map[Kind]string{
	EOF:          "eof",
	Whitespace:   "whitespace",
	Newline:      "newline",
	CommentLine:  "comment",
	CommentBlock: "block_comment",
	CodeFence:    "code_fence",
	CodeInline:   "code_inline",
	String:       "string",
	BraceOpen:    "brace_open",
	BraceClose:   "brace_close",
	Semicolon:    "semicolon",
	Equals:       "equals",
	Number:       "number",
	Ident:        "identifier",
	Keyword:      "keyword",
	Text:         "text",
}

// String returns a stable lowercase name for the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Pos is a source location. Line is 1-based, Col is 0-based, Offset is the
// byte offset into the source.
type Pos struct {
	File   string
	Line   int
	Col    int
	Offset int
}

// String renders the position as file:line:col.
func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col+1)
}

// Token is one lexical unit. Text is the raw source slice, including any
// delimiters (quotes, backticks, comment markers).
type Token struct {
	Kind Kind
	Text string
	Pos  Pos
}

// Is reports whether the token has the given kind.
func (t Token) Is(k Kind) bool { return t.Kind == k }

// Error is a recoverable lexing error; the lexer keeps scanning after
// recording one.
type Error struct {
	Msg string
	Pos Pos
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}
