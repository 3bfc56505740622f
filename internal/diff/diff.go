// Package diff decides whether a node needs recompilation. It is a
// content-addressed cache keyed by node path plus a SHA-256 hash of the
// node's canonical spec text: byte-identical text means the previously
// persisted subtree (children, context, leaf classification) is reused
// without a provider call; any difference invalidates the node and every
// descendant.
package diff

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/towc/aidef-sub001/internal/artifact"
)

// Hash returns the hex SHA-256 of canonical spec text.
func Hash(specText string) string {
	sum := sha256.Sum256([]byte(specText))
	return hex.EncodeToString(sum[:])
}

// Cache layers reuse decisions over the artifact store.
type Cache struct {
	store *artifact.Store
}

// NewCache builds a cache over the persisted tree.
func NewCache(store *artifact.Store) *Cache {
	return &Cache{store: store}
}

// Match reports whether the persisted revision of nodePath was computed
// from exactly specText. A branch matches when its branch record carries
// the same spec hash; a leaf matches when its persisted spec text is
// byte-identical and its context artifact is present. No persisted
// revision means no match.
func (c *Cache) Match(nodePath, specText string) (bool, error) {
	if rec, ok, err := c.store.ReadBranch(nodePath); err != nil {
		return false, err
	} else if ok {
		return rec.SpecHash == Hash(specText), nil
	}

	prev, ok, err := c.store.ReadSpec(nodePath)
	if err != nil || !ok {
		return false, err
	}
	return prev == specText && c.store.HasContext(nodePath), nil
}

// Invalidate drops the persisted subtree rooted at nodePath, forcing a
// full recompilation of it on the next visit.
func (c *Cache) Invalidate(nodePath string) error {
	return c.store.Invalidate(nodePath)
}
