// Package provider defines the boundary to the external collaborator
// that performs AI-driven compilation and generation. The collaborator is
// opaque: this package specifies only the two operations, their wire
// types, and an HTTP client implementation with timeout and a finite
// retry policy. Either operation may fail; callers are expected to treat
// failures as per-node or per-leaf conditions, never as fatal.
package provider

import "context"

// Interface is a named contract a node exposes or depends on.
type Interface struct {
	Source     string `json:"source"`
	Definition string `json:"definition"`
}

// Constraint is a rule handed down to a node.
type Constraint struct {
	Rule      string `json:"rule"`
	Source    string `json:"source"`
	Important bool   `json:"important,omitempty"`
}

// Utility is a helper a node may rely on.
type Utility struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Location  string `json:"location"`
	Source    string `json:"source"`
}

// Context is the bag of interfaces/constraints/utilities a parent
// explicitly hands to a child. It is parent-authored per hop: a child
// receives exactly what its parent assigned, never an automatic union of
// all ancestors. Forward lists interface names the parent wants passed
// through to grandchildren.
type Context struct {
	Interfaces  map[string]Interface `json:"interfaces,omitempty"`
	Constraints []Constraint         `json:"constraints,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
	Utilities   []Utility            `json:"utilities,omitempty"`
	Forward     []string             `json:"forward,omitempty"`
}

// Question is raised by the provider when a spec is ambiguous.
type Question struct {
	Question   string   `json:"question"`
	Context    string   `json:"context,omitempty"`
	Assumption string   `json:"assumption,omitempty"`
	Impact     string   `json:"impact,omitempty"`
	Options    []string `json:"options,omitempty"`
	Answer     string   `json:"answer,omitempty"`
}

// Consideration is a non-question note attached to a compile or generate
// outcome.
type Consideration struct {
	Note     string `json:"note"`
	Blocking bool   `json:"blocking,omitempty"`
}

// ChildSpec is one child the provider decided a branch node should have,
// with the context the parent authors for it.
type ChildSpec struct {
	Name    string  `json:"name"`
	Spec    string  `json:"spec"`
	Context Context `json:"context"`
}

// CompileRequest asks the provider to compile one node.
type CompileRequest struct {
	Spec     string  `json:"spec"`
	Context  Context `json:"context"`
	NodePath string  `json:"nodePath"`
}

// CompileResult is the provider's compilation outcome. An empty Children
// slice classifies the node as a leaf.
type CompileResult struct {
	Children       []ChildSpec     `json:"children,omitempty"`
	Interfaces     []Interface     `json:"interfaces,omitempty"`
	Constraints    []Constraint    `json:"constraints,omitempty"`
	Suggestions    []string        `json:"suggestions,omitempty"`
	Utilities      []Utility       `json:"utilities,omitempty"`
	Questions      []Question      `json:"questions,omitempty"`
	Considerations []Consideration `json:"considerations,omitempty"`
}

// File is one generated output file. Path is relative to the output root.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// GenerateRequest asks the provider to generate code for one leaf.
type GenerateRequest struct {
	Spec     string  `json:"spec"`
	Context  Context `json:"context"`
	NodePath string  `json:"nodePath"`
}

// GenerateResult is the provider's generation outcome.
type GenerateResult struct {
	Files          []File          `json:"files,omitempty"`
	Questions      []Question      `json:"questions,omitempty"`
	Considerations []Consideration `json:"considerations,omitempty"`
}

// Provider performs AI-driven compilation and generation. Both calls are
// the sole blocking points of the pipeline; implementations must honor
// context cancellation.
type Provider interface {
	Compile(ctx context.Context, req *CompileRequest) (*CompileResult, error)
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}
