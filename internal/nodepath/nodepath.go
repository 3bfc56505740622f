// Package nodepath derives the slash-joined, root-relative identifier for
// a node in the compiled spec tree from its ancestry chain.
//
// The ancestry is the ordered list of node names from the root down to the
// node itself. The synthetic "root" token is elided unless it is the only
// segment, so:
//
//	["root"]                 → "root"
//	["root", "server"]       → "server"
//	["root", "server", "api"] → "server/api"
package nodepath

import "strings"

// RootName is the name assigned to the tree's root node.
const RootName = "root"

// Join converts an ancestry chain into a node path. An empty ancestry
// yields RootName.
func Join(ancestry []string) string {
	if len(ancestry) == 0 {
		return RootName
	}
	segments := ancestry
	if segments[0] == RootName && len(segments) > 1 {
		segments = segments[1:]
	}
	return strings.Join(segments, "/")
}

// Child returns the ancestry chain for a child named name under the node
// with the given ancestry. The returned slice is a copy.
func Child(ancestry []string, name string) []string {
	out := make([]string, 0, len(ancestry)+1)
	out = append(out, ancestry...)
	return append(out, name)
}
