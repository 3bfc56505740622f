package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/towc/aidef-sub001/internal/provider"
)

// FakeProvider is a scripted in-memory provider. Responses are keyed by
// node path; unscripted paths get an empty result (a leaf / no files).
// All calls are recorded for assertions.
type FakeProvider struct {
	mu sync.Mutex

	CompileResults  map[string]*provider.CompileResult
	GenerateResults map[string]*provider.GenerateResult
	CompileErrs     map[string]error
	GenerateErrs    map[string]error

	// CompileHook and GenerateHook, when set, run inside each call. Used
	// to observe concurrency (e.g. batch barriers).
	CompileHook  func(req *provider.CompileRequest)
	GenerateHook func(req *provider.GenerateRequest)

	compileCalls  []string
	generateCalls []string
}

// NewFakeProvider creates an empty scripted provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		CompileResults:  make(map[string]*provider.CompileResult),
		GenerateResults: make(map[string]*provider.GenerateResult),
		CompileErrs:     make(map[string]error),
		GenerateErrs:    make(map[string]error),
	}
}

// Compile implements provider.Provider.
func (f *FakeProvider) Compile(ctx context.Context, req *provider.CompileRequest) (*provider.CompileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.CompileHook != nil {
		f.CompileHook(req)
	}
	f.mu.Lock()
	f.compileCalls = append(f.compileCalls, req.NodePath)
	err := f.CompileErrs[req.NodePath]
	res := f.CompileResults[req.NodePath]
	f.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", req.NodePath, err)
	}
	if res == nil {
		return &provider.CompileResult{}, nil
	}
	return res, nil
}

// Generate implements provider.Provider.
func (f *FakeProvider) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.GenerateHook != nil {
		f.GenerateHook(req)
	}
	f.mu.Lock()
	f.generateCalls = append(f.generateCalls, req.NodePath)
	err := f.GenerateErrs[req.NodePath]
	res := f.GenerateResults[req.NodePath]
	f.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("generate %q: %w", req.NodePath, err)
	}
	if res == nil {
		return &provider.GenerateResult{}, nil
	}
	return res, nil
}

// CompileCalls returns the node paths compiled so far, in call order.
func (f *FakeProvider) CompileCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.compileCalls...)
}

// GenerateCalls returns the node paths generated so far, in call order.
func (f *FakeProvider) GenerateCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.generateCalls...)
}
