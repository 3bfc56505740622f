// Package build executes the discovered leaves of a compiled spec tree
// through the provider's generate call. Leaves run in sequential batches
// of a configured width: every member of a batch settles before the next
// batch starts. A failed generation is a per-leaf result; a duplicate
// output-path claim is fatal for the whole build.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/towc/aidef-sub001/internal/artifact"
	"github.com/towc/aidef-sub001/internal/ctxlog"
	"github.com/towc/aidef-sub001/internal/overlap"
	"github.com/towc/aidef-sub001/internal/provider"
)

// Options configures one build run.
type Options struct {
	OutputRoot  string
	Parallelism int
	Provenance  bool
}

// LeafResult is the outcome for a single leaf.
type LeafResult struct {
	NodePath string
	Success  bool
	Files    []string
	Errors   []string
}

// Result aggregates a build run.
type Result struct {
	TotalLeaves    int
	Succeeded      int
	Failed         int
	Files          []provider.File
	Questions      []artifact.Questions
	Errors         []string
	Leaves         []LeafResult
	OverlapAborted bool
}

// leafOutcome carries a leaf's result plus the payloads folded into the
// aggregate once the batch settles.
type leafOutcome struct {
	LeafResult
	files     []provider.File
	questions *artifact.Questions
	overlap   bool
}

// Orchestrator runs builds against a persisted tree.
type Orchestrator struct {
	provider provider.Provider
	store    *artifact.Store
	registry *overlap.Registry
}

// New builds an orchestrator. The overlap registry is reset at the start
// of every Run, so one orchestrator may serve repeated builds.
func New(p provider.Provider, store *artifact.Store, registry *overlap.Registry) *Orchestrator {
	return &Orchestrator{provider: p, store: store, registry: registry}
}

// Run discovers leaves and generates code for each. With no leaves it
// returns a zero-count result carrying a descriptive error, touching the
// output directory only to ensure it exists.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	o.registry.Reset()

	if err := os.MkdirAll(opts.OutputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create output root %q: %w", opts.OutputRoot, err)
	}

	leaves, err := o.store.DiscoverLeaves()
	if err != nil {
		return nil, err
	}
	result := &Result{TotalLeaves: len(leaves)}
	if len(leaves) == 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("no leaves found under %q; compile a spec first", o.store.Root()))
		return result, nil
	}

	logger.Info("Starting build.", "leaves", len(leaves), "parallelism", opts.Parallelism)

	for start := 0; start < len(leaves); start += opts.Parallelism {
		end := start + opts.Parallelism
		if end > len(leaves) {
			end = len(leaves)
		}
		batch := leaves[start:end]

		var wg sync.WaitGroup
		outcomes := make([]leafOutcome, len(batch))
		for i, leaf := range batch {
			wg.Add(1)
			go func(i int, leaf artifact.Leaf) {
				defer wg.Done()
				outcomes[i] = o.runLeaf(ctx, leaf, opts)
			}(i, leaf)
		}
		// Batch barrier: everything settles before the next batch.
		wg.Wait()

		overlapHit := false
		for _, out := range outcomes {
			result.Leaves = append(result.Leaves, out.LeafResult)
			if out.Success {
				result.Succeeded++
			} else {
				result.Failed++
			}
			result.Errors = append(result.Errors, out.Errors...)
			result.Files = append(result.Files, out.files...)
			if out.questions != nil {
				result.Questions = append(result.Questions, *out.questions)
			}
			overlapHit = overlapHit || out.overlap
		}

		if overlapHit {
			result.OverlapAborted = true
			result.Errors = append(result.Errors, "build aborted: duplicate output path claim")
			logger.Error("Duplicate output path detected, aborting remaining batches.")
			break
		}
	}

	logger.Info("Build finished.",
		"succeeded", result.Succeeded, "failed", result.Failed, "files", len(result.Files))
	return result, nil
}

// runLeaf reads one leaf's artifacts, invokes generate, and writes the
// returned files. Every failure mode lands in the leaf's own outcome.
func (o *Orchestrator) runLeaf(ctx context.Context, leaf artifact.Leaf, opts Options) leafOutcome {
	logger := ctxlog.FromContext(ctx).With("nodePath", leaf.NodePath)
	out := leafOutcome{LeafResult: LeafResult{NodePath: leaf.NodePath}}
	fail := func(format string, args ...any) {
		out.Errors = append(out.Errors, fmt.Sprintf(format, args...))
	}

	spec, ok, err := o.store.ReadSpec(leaf.NodePath)
	if err != nil {
		fail("%s: %v", leaf.NodePath, err)
		return out
	}
	if !ok {
		fail("%s: missing spec artifact", leaf.NodePath)
		return out
	}
	nodeCtx, err := o.store.ReadContext(leaf.NodePath)
	if err != nil {
		fail("%s: %v", leaf.NodePath, err)
		return out
	}

	res, err := o.provider.Generate(ctx, &provider.GenerateRequest{
		Spec:     spec,
		Context:  *nodeCtx,
		NodePath: leaf.NodePath,
	})
	if err != nil {
		logger.Warn("Generation failed.", "error", err)
		fail("%s: %v", leaf.NodePath, err)
		return out
	}

	for _, file := range res.Files {
		// Claim before writing so a racing duplicate gets exactly one
		// winner and no silent overwrite. The claim key is the cleaned
		// path the writer resolves to, so two spellings of one file
		// still collide.
		claimPath := filepath.ToSlash(filepath.Clean(filepath.FromSlash(file.Path)))
		if err := o.registry.Claim(claimPath, leaf.NodePath); err != nil {
			out.Errors = append(out.Errors, err.Error())
			if errors.Is(err, overlap.ErrDuplicatePath) {
				out.overlap = true
			}
			continue
		}
		if err := artifact.WriteGeneratedFile(opts.OutputRoot, file, leaf.NodePath, opts.Provenance); err != nil {
			fail("%s: %v", leaf.NodePath, err)
			continue
		}
		out.Files = append(out.Files, file.Path)
		out.files = append(out.files, file)
	}

	if len(res.Questions) > 0 || len(res.Considerations) > 0 {
		q := &artifact.Questions{
			Module:         leaf.NodePath,
			Questions:      res.Questions,
			Considerations: res.Considerations,
		}
		if err := o.store.WriteQuestions(leaf.NodePath, q); err != nil {
			fail("%s: %v", leaf.NodePath, err)
		} else {
			out.questions = q
		}
	}

	out.Success = len(out.Errors) == 0
	return out
}
