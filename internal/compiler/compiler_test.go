package compiler_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towc/aidef-sub001/internal/artifact"
	"github.com/towc/aidef-sub001/internal/ast"
	"github.com/towc/aidef-sub001/internal/compiler"
	"github.com/towc/aidef-sub001/internal/lexer"
	"github.com/towc/aidef-sub001/internal/parser"
	"github.com/towc/aidef-sub001/internal/provider"
	"github.com/towc/aidef-sub001/internal/testutil"
)

func parseSpec(t *testing.T, src string) *ast.Root {
	t.Helper()
	tokens, lexErrs := lexer.Tokenize(src, "test.aid")
	require.Empty(t, lexErrs)
	root, parseErrs := parser.Parse(tokens, "test.aid")
	require.Empty(t, parseErrs)
	return root
}

func TestTrivialSpecIsLeafWithoutProviderCall(t *testing.T) {
	fake := testutil.NewFakeProvider()
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{})

	summary := comp.Compile(context.Background(), parseSpec(t, "timeout=30;\n"), nil)

	assert.Empty(t, fake.CompileCalls())
	assert.Equal(t, int64(1), summary.Leaves)
	assert.Equal(t, int64(0), summary.ProviderCalls)
	assert.Empty(t, summary.Errors)
	assert.True(t, store.HasContext("root"))
}

func TestBranchExpansion(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{
			{Name: "api", Spec: "serve the api;\n"},
			{Name: "db", Spec: "store the data;\n"},
		},
		Interfaces: []provider.Interface{{Source: "root", Definition: "Service"}},
	}
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{})

	root := parseSpec(t, "server {\n  api stuff\n  db stuff\n}\n")
	summary := comp.Compile(context.Background(), root, nil)

	assert.Equal(t, []string{"root"}, fake.CompileCalls())
	assert.Equal(t, int64(3), summary.NodesVisited)
	assert.Equal(t, int64(1), summary.Branches)
	assert.Equal(t, int64(2), summary.Leaves)
	assert.Empty(t, summary.Errors)

	// Branch artifacts.
	rec, ok, err := store.ReadBranch("root")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"api", "db"}, rec.Children)
	assert.False(t, store.HasContext("root"))

	// Leaf artifacts, addressed by ancestry-derived node paths.
	assert.True(t, store.HasContext("api"))
	assert.True(t, store.HasContext("db"))
	spec, ok, err := store.ReadSpec("api")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "serve the api;\n", spec)
}

func TestChildContextIsParentAuthored(t *testing.T) {
	authored := provider.Context{
		Interfaces: map[string]provider.Interface{
			"Storage": {Source: "root", Definition: "Put/Get"},
		},
		Constraints: []provider.Constraint{{Rule: "use prepared statements", Source: "root"}},
	}
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{
			{Name: "db", Spec: "store the data;\n", Context: authored},
			{Name: "api", Spec: "serve the api;\n"},
		},
	}
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{})
	comp.Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), nil)

	dbCtx, err := store.ReadContext("db")
	require.NoError(t, err)
	assert.Equal(t, &authored, dbCtx)

	// The sibling got exactly what was authored for it: nothing.
	apiCtx, err := store.ReadContext("api")
	require.NoError(t, err)
	assert.Empty(t, apiCtx.Interfaces)
	assert.Empty(t, apiCtx.Constraints)
}

func TestExplicitForwarding(t *testing.T) {
	rootCtx := &provider.Context{
		Interfaces: map[string]provider.Interface{
			"Logger": {Source: "root", Definition: "log(msg)"},
			"Hidden": {Source: "root", Definition: "secret"},
		},
		Forward: []string{"Logger"},
	}
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{{Name: "api", Spec: "serve;\n"}},
	}
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{})
	comp.Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), rootCtx)

	apiCtx, err := store.ReadContext("api")
	require.NoError(t, err)
	// Forwarded interfaces pass through; everything else does not.
	assert.Contains(t, apiCtx.Interfaces, "Logger")
	assert.NotContains(t, apiCtx.Interfaces, "Hidden")
	// The forwarding request itself propagates another hop.
	assert.Equal(t, []string{"Logger"}, apiCtx.Forward)
}

func TestProviderFailureForcesLeafAndSparesSiblings(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{
			{Name: "broken", Spec: "big {\n  child module\n}\n"},
			{Name: "fine", Spec: "small leaf;\n"},
		},
	}
	fake.CompileErrs["broken"] = errors.New("provider unavailable")

	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{})
	summary := comp.Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), nil)

	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "broken")
	assert.Contains(t, summary.Errors[0], "provider unavailable")

	// The failed node is forced to a leaf and stays buildable.
	assert.True(t, store.HasContext("broken"))
	// Siblings were unaffected.
	assert.True(t, store.HasContext("fine"))
	assert.Equal(t, int64(2), summary.Leaves)
}

func TestQuestionsArtifactWritten(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Questions: []provider.Question{{
			Question:   "REST or gRPC?",
			Assumption: "REST",
			Impact:     "transport layer",
		}},
	}
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{})
	comp.Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), nil)

	assert.FileExists(t, filepath.Join(store.NodeDir("root"), artifact.QuestionsFile))
	// No children returned, so the node is a leaf.
	assert.True(t, store.HasContext("root"))
}

func TestCallBudgetDrainsInFlightWork(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{
			{Name: "a", Spec: "a {\n  more\n}\n"},
			{Name: "b", Spec: "b {\n  more\n}\n"},
		},
	}
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{MaxCalls: 1})
	summary := comp.Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), nil)

	assert.Equal(t, "max_calls", summary.BudgetExceeded)
	// The root call happened; the children were not compiled.
	assert.Equal(t, int64(1), summary.ProviderCalls)
	assert.Equal(t, []string{"root"}, fake.CompileCalls())
	// The root's own artifacts drained to disk before the stop.
	_, ok, err := store.ReadBranch("root")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNodeBudgetStopsScheduling(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{
			{Name: "a", Spec: "leaf a;\n"},
			{Name: "b", Spec: "leaf b;\n"},
			{Name: "c", Spec: "leaf c;\n"},
		},
	}
	store := artifact.NewStore(t.TempDir())
	comp := compiler.New(fake, store, compiler.Limits{MaxNodes: 2})
	summary := comp.Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), nil)

	assert.Equal(t, "max_nodes", summary.BudgetExceeded)
	assert.LessOrEqual(t, summary.NodesVisited, int64(2))
}

func TestUnchangedTreeIsReusedWithoutProviderCalls(t *testing.T) {
	script := func() *testutil.FakeProvider {
		fake := testutil.NewFakeProvider()
		fake.CompileResults["root"] = &provider.CompileResult{
			Children: []provider.ChildSpec{
				{Name: "api", Spec: "serve;\n"},
			},
		}
		return fake
	}
	dir := t.TempDir()
	root := parseSpec(t, "server {\n  x\n}\n")

	first := script()
	summary := compiler.New(first, artifact.NewStore(dir), compiler.Limits{}).Compile(context.Background(), root, nil)
	require.Empty(t, summary.Errors)
	require.Equal(t, int64(1), summary.ProviderCalls)

	second := script()
	summary = compiler.New(second, artifact.NewStore(dir), compiler.Limits{}).Compile(context.Background(), root, nil)
	assert.Empty(t, second.CompileCalls())
	assert.Equal(t, int64(0), summary.ProviderCalls)
	assert.Equal(t, int64(1), summary.Reused)
}

func TestChangedSpecInvalidatesAndRecompiles(t *testing.T) {
	dir := t.TempDir()

	first := testutil.NewFakeProvider()
	first.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{{Name: "api", Spec: "old leaf;\n"}},
	}
	compiler.New(first, artifact.NewStore(dir), compiler.Limits{}).
		Compile(context.Background(), parseSpec(t, "server {\n  v1\n}\n"), nil)

	second := testutil.NewFakeProvider()
	second.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{{Name: "api", Spec: "new leaf;\n"}},
	}
	store := artifact.NewStore(dir)
	summary := compiler.New(second, store, compiler.Limits{}).
		Compile(context.Background(), parseSpec(t, "server {\n  v2\n}\n"), nil)

	// The changed root recompiled; the changed child was rewritten.
	assert.Equal(t, []string{"root"}, second.CompileCalls())
	assert.Equal(t, int64(0), summary.Reused)
	spec, ok, err := store.ReadSpec("api")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new leaf;\n", spec)
}

func TestInvalidChildNamesAreRejected(t *testing.T) {
	fake := testutil.NewFakeProvider()
	fake.CompileResults["root"] = &provider.CompileResult{
		Children: []provider.ChildSpec{
			{Name: "../escape", Spec: "x;\n"},
			{Name: "", Spec: "x;\n"},
			{Name: "ok", Spec: "x;\n"},
		},
	}
	store := artifact.NewStore(t.TempDir())
	summary := compiler.New(fake, store, compiler.Limits{}).
		Compile(context.Background(), parseSpec(t, "server {\n  x\n}\n"), nil)

	assert.Len(t, summary.Errors, 2)
	assert.True(t, store.HasContext("ok"))
}
