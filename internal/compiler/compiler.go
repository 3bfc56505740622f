// Package compiler expands a resolved spec AST into the persisted tree of
// branch and leaf nodes. Expansion is sequential along any single branch
// (a child's context is only known once its parent compiled) while
// independent branches run concurrently, with in-flight provider calls
// bounded by a semaphore. Per-node provider failures force the node to a
// leaf and never abort siblings.
package compiler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/towc/aidef-sub001/internal/artifact"
	"github.com/towc/aidef-sub001/internal/ast"
	"github.com/towc/aidef-sub001/internal/ctxlog"
	"github.com/towc/aidef-sub001/internal/diff"
	"github.com/towc/aidef-sub001/internal/nodepath"
	"github.com/towc/aidef-sub001/internal/provider"
)

// SmallSpecThreshold is the canonical-text length below which a node with
// no block structure is classified a leaf without a provider call.
const SmallSpecThreshold = 160

// Limits are the compilation ceilings. Hitting one stops scheduling new
// nodes; in-flight work drains and the run reports which ceiling tripped.
type Limits struct {
	MaxNodes    int64
	MaxCalls    int64
	Parallelism int64
}

// Summary aggregates one compilation run.
type Summary struct {
	NodesVisited   int64
	ProviderCalls  int64
	Leaves         int64
	Branches       int64
	Reused         int64
	Errors         []string
	BudgetExceeded string // empty, "max_nodes", or "max_calls"
}

// Compiler drives one tree expansion. Create a fresh instance per run;
// its counters and error list are run-scoped.
type Compiler struct {
	provider provider.Provider
	store    *artifact.Store
	cache    *diff.Cache
	sem      *semaphore.Weighted
	limits   Limits

	wg            sync.WaitGroup
	nodesVisited  atomic.Int64
	providerCalls atomic.Int64
	leaves        atomic.Int64
	branches      atomic.Int64
	reused        atomic.Int64

	mu     sync.Mutex
	errs   []string
	budget string
}

// New builds a compiler. Zero limits default to 500 nodes, 200 calls,
// parallelism 4.
func New(p provider.Provider, store *artifact.Store, limits Limits) *Compiler {
	if limits.MaxNodes <= 0 {
		limits.MaxNodes = 500
	}
	if limits.MaxCalls <= 0 {
		limits.MaxCalls = 200
	}
	if limits.Parallelism <= 0 {
		limits.Parallelism = 4
	}
	return &Compiler{
		provider: p,
		store:    store,
		cache:    diff.NewCache(store),
		sem:      semaphore.NewWeighted(limits.Parallelism),
		limits:   limits,
	}
}

// Compile expands the resolved document into the persisted tree and
// returns the run summary. rootCtx is the context authored for the root
// node; pass nil for an empty one.
func (c *Compiler) Compile(ctx context.Context, root *ast.Root, rootCtx *provider.Context) *Summary {
	if rootCtx == nil {
		rootCtx = &provider.Context{}
	}
	spec := ast.Serialize(root)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.compileNode(ctx, []string{nodepath.RootName}, spec, rootCtx)
	}()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return &Summary{
		NodesVisited:   c.nodesVisited.Load(),
		ProviderCalls:  c.providerCalls.Load(),
		Leaves:         c.leaves.Load(),
		Branches:       c.branches.Load(),
		Reused:         c.reused.Load(),
		Errors:         c.errs,
		BudgetExceeded: c.budget,
	}
}

func (c *Compiler) recordError(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

func (c *Compiler) hitBudget(which string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.budget == "" {
		c.budget = which
	}
}

func (c *Compiler) budgetHit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget != ""
}

// compileNode runs one node through the state machine:
// Pending → SpecSerialized → {Leaf | ProviderInvoked → Branch} →
// ContextWritten → Terminal.
func (c *Compiler) compileNode(ctx context.Context, ancestry []string, specText string, nodeCtx *provider.Context) {
	logger := ctxlog.FromContext(ctx)
	np := nodepath.Join(ancestry)

	if c.nodesVisited.Add(1) > c.limits.MaxNodes {
		c.nodesVisited.Add(-1)
		c.hitBudget("max_nodes")
		logger.Warn("Node budget exhausted, not scheduling node.", "nodePath", np)
		return
	}

	// Unchanged since the last run: reuse the whole persisted subtree.
	match, err := c.cache.Match(np, specText)
	if err != nil {
		c.recordError("%s: diff check: %v", np, err)
	}
	if match {
		logger.Debug("Spec unchanged, reusing persisted subtree.", "nodePath", np)
		c.reused.Add(1)
		return
	}
	if err := c.cache.Invalidate(np); err != nil {
		c.recordError("%s: invalidate: %v", np, err)
	}

	if err := c.store.WriteSpec(np, specText); err != nil {
		c.recordError("%s: %v", np, err)
	}

	// Trivially small single-statement specs are leaves without asking
	// the provider.
	if len(specText) < SmallSpecThreshold && !strings.Contains(specText, "{") {
		logger.Debug("Classified leaf without provider call.", "nodePath", np)
		c.finishLeaf(np, nodeCtx)
		return
	}

	if c.providerCalls.Add(1) > c.limits.MaxCalls {
		c.providerCalls.Add(-1)
		c.hitBudget("max_calls")
		logger.Warn("Provider call budget exhausted, not compiling node.", "nodePath", np)
		return
	}

	result, err := c.callCompile(ctx, &provider.CompileRequest{
		Spec:     specText,
		Context:  *nodeCtx,
		NodePath: np,
	})
	if err != nil {
		// A failed compile forces the node to a leaf so the rest of the
		// tree keeps expanding and the node stays buildable.
		logger.Warn("Provider compile failed, forcing node to leaf.", "nodePath", np, "error", err)
		c.recordError("%s: %v", np, err)
		c.finishLeaf(np, nodeCtx)
		return
	}

	if len(result.Questions) > 0 || len(result.Considerations) > 0 {
		if err := c.store.WriteQuestions(np, &artifact.Questions{
			Module:         np,
			Questions:      result.Questions,
			Considerations: result.Considerations,
		}); err != nil {
			c.recordError("%s: %v", np, err)
		}
	}

	if len(result.Children) == 0 {
		logger.Debug("Provider returned no children, node is a leaf.", "nodePath", np)
		c.finishLeaf(np, nodeCtx)
		return
	}

	children := make([]string, 0, len(result.Children))
	for _, child := range result.Children {
		children = append(children, child.Name)
	}
	if err := c.store.WriteBranch(np, &artifact.BranchRecord{
		SpecHash:    diff.Hash(specText),
		Children:    children,
		Interfaces:  result.Interfaces,
		Constraints: result.Constraints,
		Suggestions: result.Suggestions,
		Utilities:   result.Utilities,
	}); err != nil {
		c.recordError("%s: %v", np, err)
	}
	c.branches.Add(1)
	logger.Debug("Node is a branch.", "nodePath", np, "children", len(children))

	for _, child := range result.Children {
		if !validChildName(child.Name) {
			c.recordError("%s: provider returned invalid child name %q", np, child.Name)
			continue
		}
		if c.budgetHit() {
			logger.Warn("Budget exhausted, not scheduling child.", "nodePath", np, "child", child.Name)
			continue
		}
		childAncestry := nodepath.Child(ancestry, child.Name)
		childCtx := forwarded(nodeCtx, child.Context)
		childSpec := child.Spec
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.compileNode(ctx, childAncestry, childSpec, childCtx)
		}()
	}
}

// callCompile is the sole blocking point of tree expansion; the semaphore
// caps how many provider calls are in flight at once.
func (c *Compiler) callCompile(ctx context.Context, req *provider.CompileRequest) (*provider.CompileResult, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("compile %q: %w", req.NodePath, err)
	}
	defer c.sem.Release(1)
	return c.provider.Compile(ctx, req)
}

func (c *Compiler) finishLeaf(np string, nodeCtx *provider.Context) {
	if err := c.store.WriteContext(np, nodeCtx); err != nil {
		c.recordError("%s: %v", np, err)
		return
	}
	c.leaves.Add(1)
}

// forwarded applies the parent's explicit forwarding list on top of the
// context the parent authored for the child: each forwarded interface the
// child doesn't already carry is copied in, and the forwarding request
// itself propagates another hop.
func forwarded(parentCtx *provider.Context, childCtx provider.Context) *provider.Context {
	out := childCtx
	for _, name := range parentCtx.Forward {
		iface, ok := parentCtx.Interfaces[name]
		if !ok {
			continue
		}
		if out.Interfaces == nil {
			out.Interfaces = make(map[string]provider.Interface)
		}
		if _, exists := out.Interfaces[name]; !exists {
			out.Interfaces[name] = iface
		}
		if !contains(out.Forward, name) {
			out.Forward = append(out.Forward, name)
		}
	}
	return &out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func validChildName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}
