package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/towc/aidef-sub001/internal/app"
)

// HarnessResult holds the outcomes of an integration-style run.
type HarnessResult struct {
	Dir       string
	TreeRoot  string
	OutRoot   string
	LogOutput string
	Err       error
	App       *app.App
}

// WriteFiles materializes the given relative-path → content map under a
// fresh temp dir and returns its path.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		target := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
		require.NoError(t, os.WriteFile(target, []byte(content), 0o644))
	}
	return dir
}

// RunCompile runs `aidef compile` over the given files with a scripted
// provider. The spec entrypoint must be named "main.aid".
func RunCompile(t *testing.T, files map[string]string, fake *FakeProvider) *HarnessResult {
	t.Helper()
	dir := WriteFiles(t, files)
	tree := filepath.Join(dir, "tree")

	cfg, err := app.NewConfig(app.Config{
		Command:  app.CommandCompile,
		SpecPath: filepath.Join(dir, "main.aid"),
		TreeRoot: tree,
		LogLevel: "debug",
	})
	require.NoError(t, err)

	var logs SafeBuffer
	application, err := app.New(&logs, cfg, app.WithProvider(fake))
	require.NoError(t, err)

	runErr := application.Run(context.Background())
	return &HarnessResult{
		Dir:       dir,
		TreeRoot:  tree,
		LogOutput: logs.String(),
		Err:       runErr,
		App:       application,
	}
}

// RunBuild runs `aidef build` against an existing tree root.
func RunBuild(t *testing.T, treeRoot string, fake *FakeProvider, parallelism int) *HarnessResult {
	t.Helper()
	out := t.TempDir()

	cfg, err := app.NewConfig(app.Config{
		Command:     app.CommandBuild,
		TreeRoot:    treeRoot,
		OutputRoot:  out,
		Parallelism: parallelism,
		LogLevel:    "debug",
	})
	require.NoError(t, err)

	var logs SafeBuffer
	application, err := app.New(&logs, cfg, app.WithProvider(fake))
	require.NoError(t, err)

	runErr := application.Run(context.Background())
	return &HarnessResult{
		TreeRoot:  treeRoot,
		OutRoot:   out,
		LogOutput: logs.String(),
		Err:       runErr,
		App:       application,
	}
}
