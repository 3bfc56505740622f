// Package overlap guards against two leaves claiming the same generated
// output path within one compilation run. The registry is run-scoped
// state passed by reference through the build, never a process-wide
// singleton; Reset is called once at the start of each run.
package overlap

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicatePath is wrapped by every duplicate-claim error.
var ErrDuplicatePath = errors.New("output path already claimed")

// DuplicateError reports a duplicate claim, naming both claimants so the
// collision is actionable.
type DuplicateError struct {
	Path          string
	FirstClaimant string
	Claimant      string
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("output path %q claimed by both %q and %q", e.Path, e.FirstClaimant, e.Claimant)
}

// Unwrap lets callers match against ErrDuplicatePath.
func (e *DuplicateError) Unwrap() error { return ErrDuplicatePath }

// Registry is the run-scoped set of claimed output paths. Claims are
// synchronized, so two leaves racing for one path get a deterministic
// single winner.
type Registry struct {
	mu     sync.Mutex
	claims map[string]string // output path → claiming node path
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{claims: make(map[string]string)}
}

// Claim records that nodePath produces the given output path. It fails
// with a *DuplicateError if the path was already claimed this run. The
// claim is taken before the corresponding file write, so a failed claim
// means nothing was overwritten.
func (r *Registry) Claim(path, nodePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if first, ok := r.claims[path]; ok {
		return &DuplicateError{Path: path, FirstClaimant: first, Claimant: nodePath}
	}
	r.claims[path] = nodePath
	return nil
}

// Reset clears all registrations. Call once at the start of each
// top-level compilation run.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = make(map[string]string)
}

// Len returns the number of claimed paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}
