// Package resolver splices included files into a parsed spec AST. All
// state is scoped to a Session: a cache of resolved imports keyed by
// absolute path, and the set of paths currently being resolved for cycle
// detection. Sessions are single-use; create a fresh one per compilation
// run so no state leaks across runs.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/towc/aidef-sub001/internal/ast"
	"github.com/towc/aidef-sub001/internal/lexer"
	"github.com/towc/aidef-sub001/internal/parser"
)

// SpecExt is the spec-file extension; bare include paths without an
// extension default to it.
const SpecExt = ".aid"

// ResolvedImport records one include target. A spec-file target carries
// its parsed (and recursively resolved) AST; any other file is captured
// as raw content.
type ResolvedImport struct {
	OriginalPath string
	AbsolutePath string
	IsSpecFile   bool
	AST          *ast.Root
	RawContent   string
}

// Error is an import resolution error tied to the include statement that
// caused it.
type Error struct {
	Msg string
	Rng ast.SourceRange
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Rng, e.Msg)
}

// ReadFileFunc reads a file's content; injectable so tests can count
// physical reads.
type ReadFileFunc func(path string) (string, error)

// Session holds the per-resolution state. A single logical resolution
// pass may touch it from one goroutine only; the mutex guards against
// accidental concurrent reuse, not for cross-session sharing.
type Session struct {
	mu        sync.Mutex
	resolving map[string]struct{}
	imports   map[string]*ResolvedImport
	readFile  ReadFileFunc
}

// Option customizes a Session.
type Option func(*Session)

// WithReadFile overrides how included files are read.
func WithReadFile(fn ReadFileFunc) Option {
	return func(s *Session) { s.readFile = fn }
}

// NewSession creates an empty resolution session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		resolving: make(map[string]struct{}),
		imports:   make(map[string]*ResolvedImport),
		readFile: func(path string) (string, error) {
			data, err := os.ReadFile(path)
			return string(data), err
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Imports returns the session's import table, keyed by absolute path.
func (s *Session) Imports() map[string]*ResolvedImport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ResolvedImport, len(s.imports))
	for k, v := range s.imports {
		out[k] = v
	}
	return out
}

// Resolve returns a new root with every include statement replaced by the
// target's content. basePath is the path of the file the AST came from;
// relative includes resolve against its directory. Errors are recoverable
// at include granularity: a failing include contributes no nodes and its
// siblings continue resolving.
func (s *Session) Resolve(root *ast.Root, basePath string) (*ast.Root, []error) {
	var errs []error
	children := s.resolveChildren(root.Children, basePath, &errs)
	return &ast.Root{Children: children, Rng: root.Rng}, errs
}

func (s *Session) resolveChildren(nodes []ast.Node, basePath string, errs *[]error) []ast.Node {
	out := make([]ast.Node, 0, len(nodes))
	for _, node := range nodes {
		switch n := node.(type) {
		case *ast.Include:
			out = append(out, s.resolveInclude(n, basePath, errs)...)
		case *ast.Module:
			out = append(out, &ast.Module{
				Name:       n.Name,
				Tags:       n.Tags,
				Pseudos:    n.Pseudos,
				Combinator: n.Combinator,
				Children:   s.resolveChildren(n.Children, basePath, errs),
				Rng:        n.Rng,
			})
		default:
			out = append(out, node)
		}
	}
	return out
}

func (s *Session) resolveInclude(inc *ast.Include, basePath string, errs *[]error) []ast.Node {
	if strings.Contains(inc.Path, "://") {
		*errs = append(*errs, &Error{
			Msg: fmt.Sprintf("URL includes are not yet supported: %q", inc.Path),
			Rng: inc.Rng,
		})
		return nil
	}

	abs, err := resolvePath(inc.Path, basePath)
	if err != nil {
		*errs = append(*errs, &Error{Msg: err.Error(), Rng: inc.Rng})
		return nil
	}

	s.mu.Lock()
	if _, busy := s.resolving[abs]; busy {
		s.mu.Unlock()
		*errs = append(*errs, &Error{
			Msg: fmt.Sprintf("circular include of %q", inc.Path),
			Rng: inc.Rng,
		})
		return nil
	}
	if cached, ok := s.imports[abs]; ok {
		s.mu.Unlock()
		return spliced(cached, inc)
	}
	s.resolving[abs] = struct{}{}
	s.mu.Unlock()

	resolved, err := s.load(inc, abs, errs)

	s.mu.Lock()
	delete(s.resolving, abs)
	if resolved != nil {
		s.imports[abs] = resolved
	}
	s.mu.Unlock()

	if err != nil {
		*errs = append(*errs, &Error{Msg: err.Error(), Rng: inc.Rng})
	}
	if resolved == nil {
		return nil
	}
	return spliced(resolved, inc)
}

// load reads and, for spec files, parses and recursively resolves the
// include target. The caller holds no locks; the target is already in the
// resolving set.
func (s *Session) load(inc *ast.Include, abs string, errs *[]error) (*ResolvedImport, error) {
	content, err := s.readFile(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read include %q: %w", inc.Path, err)
	}

	if filepath.Ext(abs) != SpecExt {
		return &ResolvedImport{
			OriginalPath: inc.Path,
			AbsolutePath: abs,
			RawContent:   strings.TrimSpace(content),
		}, nil
	}

	tokens, lexErrs := lexer.Tokenize(content, abs)
	for _, e := range lexErrs {
		*errs = append(*errs, e)
	}
	parsed, parseErrs := parser.Parse(tokens, abs)
	for _, e := range parseErrs {
		*errs = append(*errs, e)
	}

	// The included file's own includes resolve against its directory.
	resolvedRoot, nested := s.Resolve(parsed, abs)
	*errs = append(*errs, nested...)

	return &ResolvedImport{
		OriginalPath: inc.Path,
		AbsolutePath: abs,
		IsSpecFile:   true,
		AST:          resolvedRoot,
	}, nil
}

// spliced produces the nodes that replace an include statement. Non-spec
// content becomes a single prose node carrying the include's source range
// for provenance.
func spliced(imp *ResolvedImport, inc *ast.Include) []ast.Node {
	if !imp.IsSpecFile {
		return []ast.Node{&ast.Prose{Text: imp.RawContent, Rng: inc.Rng}}
	}
	return imp.AST.Children
}

// resolvePath applies the include path rules: a bare name is "./name", a
// missing extension defaults to SpecExt, and the result is made absolute
// relative to the including file's directory.
func resolvePath(path, basePath string) (string, error) {
	if !strings.HasPrefix(path, "./") && !strings.HasPrefix(path, "../") && !filepath.IsAbs(path) {
		path = "./" + path
	}
	if filepath.Ext(path) == "" {
		path += SpecExt
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(basePath), path)
	}
	return filepath.Abs(path)
}
