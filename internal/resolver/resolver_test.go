package resolver

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towc/aidef-sub001/internal/ast"
	"github.com/towc/aidef-sub001/internal/lexer"
	"github.com/towc/aidef-sub001/internal/parser"
)

// countingReader wraps file reads with a per-path counter.
type countingReader struct {
	mu    sync.Mutex
	reads map[string]int
	files map[string]string
}

func newCountingReader(t *testing.T, files map[string]string) (*countingReader, string) {
	t.Helper()
	dir := t.TempDir()
	abs := make(map[string]string, len(files))
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		abs[path] = content
	}
	return &countingReader{reads: make(map[string]int), files: abs}, dir
}

func (r *countingReader) read(path string) (string, error) {
	r.mu.Lock()
	r.reads[path]++
	r.mu.Unlock()
	content, ok := r.files[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return content, nil
}

func parseSource(t *testing.T, src, file string) *ast.Root {
	t.Helper()
	tokens, lexErrs := lexer.Tokenize(src, file)
	require.Empty(t, lexErrs)
	root, parseErrs := parser.Parse(tokens, file)
	require.Empty(t, parseErrs)
	return root
}

func TestResolveSplicesSpecInclude(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"common.aid": "shared prose;\n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include common;\nafter;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)
	require.Empty(t, errs)

	require.Len(t, resolved.Children, 2)
	prose, ok := resolved.Children[0].(*ast.Prose)
	require.True(t, ok)
	assert.Equal(t, "shared prose", prose.Text)
	// Provenance: the spliced node still points at the included file.
	assert.Equal(t, filepath.Join(dir, "common.aid"), prose.Rng.File)
}

func TestResolveDefaultsExtensionAndBareName(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"lib/util.aid": "util prose;\n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include lib/util;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)
	require.Empty(t, errs)
	require.Len(t, resolved.Children, 1)
	assert.Equal(t, 1, reader.reads[filepath.Join(dir, "lib", "util.aid")])
}

func TestResolveCachesRepeatedInclude(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"common.aid": "shared prose;\n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include common;\ninclude common;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)
	require.Empty(t, errs)

	// Both include sites got structurally identical content.
	require.Len(t, resolved.Children, 2)
	first := resolved.Children[0].(*ast.Prose)
	second := resolved.Children[1].(*ast.Prose)
	assert.Equal(t, first.Text, second.Text)

	// The physical file was read and parsed exactly once this session.
	assert.Equal(t, 1, reader.reads[filepath.Join(dir, "common.aid")])
	assert.Len(t, session.Imports(), 1)
}

func TestResolveCircularIncludeSingleError(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"a.aid": "include b;\nfrom a;\n",
		"b.aid": "include a;\nfrom b;\n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include a;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "circular include")

	// Resolution terminated and both files' own content survived.
	var texts []string
	ast.Walk(resolved, func(n ast.Node) bool {
		if p, ok := n.(*ast.Prose); ok {
			texts = append(texts, p.Text)
		}
		return true
	})
	assert.Contains(t, texts, "from a")
	assert.Contains(t, texts, "from b")
}

func TestResolveNonSpecFileInlinedAsProse(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"schema.sql": "  CREATE TABLE users (id INT);  \n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include ./schema.sql;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)
	require.Empty(t, errs)

	require.Len(t, resolved.Children, 1)
	prose := resolved.Children[0].(*ast.Prose)
	assert.Equal(t, "CREATE TABLE users (id INT);", prose.Text)
	// Provenance points at the include statement, not the raw file.
	assert.Equal(t, base, prose.Rng.File)

	imp := session.Imports()[filepath.Join(dir, "schema.sql")]
	require.NotNil(t, imp)
	assert.False(t, imp.IsSpecFile)
}

func TestResolveRejectsURLSchemes(t *testing.T) {
	base := filepath.Join(t.TempDir(), "main.aid")
	root := parseSource(t, "include https://example.com/spec.aid;\nafter;\n", base)

	session := NewSession()
	resolved, errs := session.Resolve(root, base)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "not yet supported")
	// The offending include contributes no nodes; siblings continue.
	require.Len(t, resolved.Children, 1)
	assert.Equal(t, "after", resolved.Children[0].(*ast.Prose).Text)
}

func TestResolveMissingFileIsRecoverable(t *testing.T) {
	reader, dir := newCountingReader(t, nil)
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include ghost;\nstill here;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "cannot read include")
	require.Len(t, resolved.Children, 1)
	assert.Equal(t, "still here", resolved.Children[0].(*ast.Prose).Text)
}

func TestResolveIncludeInsideModule(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"inner.aid": "inner prose;\n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "server {\n  include inner;\n}\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)
	require.Empty(t, errs)

	mod := resolved.Children[0].(*ast.Module)
	require.Len(t, mod.Children, 1)
	assert.Equal(t, "inner prose", mod.Children[0].(*ast.Prose).Text)
}

func TestResolveNestedIncludesUseTargetDirAsBase(t *testing.T) {
	reader, dir := newCountingReader(t, map[string]string{
		"sub/outer.aid": "include inner;\n",
		"sub/inner.aid": "deep prose;\n",
	})
	base := filepath.Join(dir, "main.aid")
	root := parseSource(t, "include sub/outer;\n", base)

	session := NewSession(WithReadFile(reader.read))
	resolved, errs := session.Resolve(root, base)
	require.Empty(t, errs)

	require.Len(t, resolved.Children, 1)
	assert.Equal(t, "deep prose", resolved.Children[0].(*ast.Prose).Text)
}
