// Package artifact persists the compiled spec tree. Each node path owns a
// directory under the tree root holding up to four files: the canonical
// spec text, the inherited context (whose presence marks the node as a
// leaf), the branch record for nodes that produced children, and any
// questions the provider raised.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/towc/aidef-sub001/internal/provider"
)

// Artifact file names within a node directory.
const (
	SpecFile      = "spec.aid"
	ContextFile   = "context.json"
	BranchFile    = "branch.json"
	QuestionsFile = "questions.json"
)

// BranchRecord is persisted for every branch node: the children the
// provider produced, the compile outcome worth keeping, and the hash of
// the spec text the record was computed from (consumed by the diff
// cache).
type BranchRecord struct {
	SpecHash    string                `json:"specHash"`
	Children    []string              `json:"children"`
	Interfaces  []provider.Interface  `json:"interfaces,omitempty"`
	Constraints []provider.Constraint `json:"constraints,omitempty"`
	Suggestions []string              `json:"suggestions,omitempty"`
	Utilities   []provider.Utility    `json:"utilities,omitempty"`
}

// Questions is the persisted questions artifact for one node.
type Questions struct {
	Module         string                   `json:"module"`
	Questions      []provider.Question      `json:"questions,omitempty"`
	Considerations []provider.Consideration `json:"considerations,omitempty"`
}

// Leaf is a discovered leaf node, located by its artifacts.
type Leaf struct {
	NodePath    string
	SpecPath    string
	ContextPath string
}

// Store manages artifact IO rooted at the tree directory.
type Store struct {
	root string
}

// NewStore builds a store over the given tree root. The directory need
// not exist yet.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the tree root directory.
func (s *Store) Root() string { return s.root }

// NodeDir maps a node path to its directory.
func (s *Store) NodeDir(nodePath string) string {
	return filepath.Join(s.root, filepath.FromSlash(nodePath))
}

// WriteSpec persists the canonical spec text for a node.
func (s *Store) WriteSpec(nodePath, text string) error {
	return s.writeFile(nodePath, SpecFile, []byte(text))
}

// ReadSpec returns the persisted spec text. ok is false when no spec
// artifact exists for the node.
func (s *Store) ReadSpec(nodePath string) (text string, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.NodeDir(nodePath), SpecFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read spec artifact for %q: %w", nodePath, err)
	}
	return string(data), true, nil
}

// WriteContext persists a node's inherited context, marking it as a leaf.
func (s *Store) WriteContext(nodePath string, nodeCtx *provider.Context) error {
	return s.writeJSON(nodePath, ContextFile, nodeCtx)
}

// ReadContext loads a leaf's context artifact.
func (s *Store) ReadContext(nodePath string) (*provider.Context, error) {
	var nodeCtx provider.Context
	if err := s.readJSON(nodePath, ContextFile, &nodeCtx); err != nil {
		return nil, err
	}
	return &nodeCtx, nil
}

// WriteBranch persists a branch node's compile record.
func (s *Store) WriteBranch(nodePath string, rec *BranchRecord) error {
	return s.writeJSON(nodePath, BranchFile, rec)
}

// ReadBranch loads a branch record. ok is false when the node has none.
func (s *Store) ReadBranch(nodePath string) (rec *BranchRecord, ok bool, err error) {
	var out BranchRecord
	err = s.readJSON(nodePath, BranchFile, &out)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// WriteQuestions persists the questions artifact for a node.
func (s *Store) WriteQuestions(nodePath string, q *Questions) error {
	return s.writeJSON(nodePath, QuestionsFile, q)
}

// Invalidate removes a node's directory and with it the entire persisted
// subtree below the node.
func (s *Store) Invalidate(nodePath string) error {
	return os.RemoveAll(s.NodeDir(nodePath))
}

// HasContext reports whether the node carries the leaf marker.
func (s *Store) HasContext(nodePath string) bool {
	_, err := os.Stat(filepath.Join(s.NodeDir(nodePath), ContextFile))
	return err == nil
}

// DiscoverLeaves walks the persisted tree and returns every node marked
// as a leaf by a context artifact. A missing tree root means no leaves,
// not an error.
func (s *Store) DiscoverLeaves() ([]Leaf, error) {
	var leaves []Leaf
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || d.Name() != ContextFile {
			return nil
		}
		dir := filepath.Dir(path)
		rel, err := filepath.Rel(s.root, dir)
		if err != nil {
			return err
		}
		leaves = append(leaves, Leaf{
			NodePath:    filepath.ToSlash(rel),
			SpecPath:    filepath.Join(dir, SpecFile),
			ContextPath: path,
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("discover leaves under %q: %w", s.root, err)
	}
	return leaves, nil
}

func (s *Store) writeFile(nodePath, name string, data []byte) error {
	dir := s.NodeDir(nodePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create node dir for %q: %w", nodePath, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s for %q: %w", name, nodePath, err)
	}
	return nil
}

func (s *Store) writeJSON(nodePath, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s for %q: %w", name, nodePath, err)
	}
	return s.writeFile(nodePath, name, append(data, '\n'))
}

func (s *Store) readJSON(nodePath, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.NodeDir(nodePath), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return fmt.Errorf("read %s for %q: %w", name, nodePath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s for %q: %w", name, nodePath, err)
	}
	return nil
}

// provenanceComment maps a file extension to its line-comment marker for
// the optional provenance header. Unknown extensions get no header.
var provenanceComment = map[string]string{
	".go": "//", ".ts": "//", ".tsx": "//", ".js": "//", ".jsx": "//",
	".c": "//", ".h": "//", ".cpp": "//", ".rs": "//", ".java": "//",
	".py": "#", ".rb": "#", ".sh": "#", ".yaml": "#", ".yml": "#",
	".toml": "#", ".hcl": "#", ".aid": "//",
}

// WriteGeneratedFile writes one provider-generated file under outputRoot,
// creating intermediate directories. The path must be relative and stay
// inside the output root. With provenance enabled, files whose extension
// has a known comment syntax get a first line naming the producing node.
func WriteGeneratedFile(outputRoot string, file provider.File, nodePath string, provenance bool) error {
	rel := filepath.FromSlash(file.Path)
	if filepath.IsAbs(rel) {
		return fmt.Errorf("generated path %q is absolute", file.Path)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("generated path %q escapes the output root", file.Path)
	}

	target := filepath.Join(outputRoot, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output dir for %q: %w", file.Path, err)
	}

	content := file.Content
	if provenance {
		if marker, ok := provenanceComment[filepath.Ext(clean)]; ok {
			content = fmt.Sprintf("%s aidef: %s\n%s", marker, nodePath, content)
		}
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write generated file %q: %w", file.Path, err)
	}
	return nil
}
