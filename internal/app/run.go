package app

import (
	"context"
	"fmt"
	"os"

	"github.com/towc/aidef-sub001/internal/build"
	"github.com/towc/aidef-sub001/internal/compiler"
	"github.com/towc/aidef-sub001/internal/ctxlog"
	"github.com/towc/aidef-sub001/internal/lexer"
	"github.com/towc/aidef-sub001/internal/parser"
	"github.com/towc/aidef-sub001/internal/resolver"
)

// Run executes the configured command. Errors that were already
// aggregated into results are surfaced as a single failure summary; the
// caller decides process exit status.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	switch a.cfg.Command {
	case CommandCompile:
		return a.runCompile(ctx)
	case CommandBuild:
		return a.runBuild(ctx)
	default:
		return fmt.Errorf("unknown command %q", a.cfg.Command)
	}
}

// runCompile runs the front end (lex, parse, resolve includes) and then
// expands the tree through the provider.
func (a *App) runCompile(ctx context.Context) error {
	specPath := a.cfg.SpecPath
	a.logger.Info("Compiling spec.", "path", specPath, "tree", a.model.TreeRoot)

	source, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("read spec %q: %w", specPath, err)
	}

	var frontEndErrs []string
	tokens, lexErrs := lexer.Tokenize(string(source), specPath)
	for _, e := range lexErrs {
		frontEndErrs = append(frontEndErrs, e.Error())
	}
	parsed, parseErrs := parser.Parse(tokens, specPath)
	for _, e := range parseErrs {
		frontEndErrs = append(frontEndErrs, e.Error())
	}

	session := resolver.NewSession()
	resolved, resolveErrs := session.Resolve(parsed, specPath)
	for _, e := range resolveErrs {
		frontEndErrs = append(frontEndErrs, e.Error())
	}
	for _, msg := range frontEndErrs {
		a.logger.Error("Front-end error.", "error", msg)
	}
	a.logger.Debug("Front end finished.",
		"imports", len(session.Imports()), "errors", len(frontEndErrs))

	comp := compiler.New(a.provider, a.store, compiler.Limits{
		MaxNodes:    int64(a.model.Limits.MaxNodes),
		MaxCalls:    int64(a.model.Limits.MaxCalls),
		Parallelism: int64(a.model.Limits.Parallelism),
	})
	summary := comp.Compile(ctx, resolved, nil)

	a.logger.Info("Compilation finished.",
		"nodes", summary.NodesVisited,
		"providerCalls", summary.ProviderCalls,
		"leaves", summary.Leaves,
		"branches", summary.Branches,
		"reused", summary.Reused,
		"errors", len(summary.Errors))
	for _, msg := range summary.Errors {
		a.logger.Error("Compile error.", "error", msg)
	}

	if summary.BudgetExceeded != "" {
		return fmt.Errorf("compilation stopped: %s budget exceeded", summary.BudgetExceeded)
	}
	if total := len(frontEndErrs) + len(summary.Errors); total > 0 {
		return fmt.Errorf("compilation finished with %d error(s)", total)
	}
	return nil
}

// runBuild generates code for every discovered leaf.
func (a *App) runBuild(ctx context.Context) error {
	a.logger.Info("Building from tree.",
		"tree", a.model.TreeRoot, "output", a.model.Output.Root)

	orch := build.New(a.provider, a.store, a.registry)
	result, err := orch.Run(ctx, build.Options{
		OutputRoot:  a.model.Output.Root,
		Parallelism: a.model.Limits.Parallelism,
		Provenance:  a.model.Output.Provenance,
	})
	if err != nil {
		return err
	}

	a.logger.Info("Build finished.",
		"leaves", result.TotalLeaves,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"files", len(result.Files),
		"questions", len(result.Questions))
	for _, msg := range result.Errors {
		a.logger.Error("Build error.", "error", msg)
	}

	if result.OverlapAborted {
		return fmt.Errorf("build aborted: %d error(s), see log for both claimants", len(result.Errors))
	}
	if result.Failed > 0 || len(result.Errors) > 0 {
		return fmt.Errorf("build finished with %d failed leaf/leaves and %d error(s)",
			result.Failed, len(result.Errors))
	}
	return nil
}
