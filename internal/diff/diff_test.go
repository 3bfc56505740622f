package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towc/aidef-sub001/internal/artifact"
	"github.com/towc/aidef-sub001/internal/provider"
)

func TestHashIsStableAndContentAddressed(t *testing.T) {
	assert.Equal(t, Hash("spec"), Hash("spec"))
	assert.NotEqual(t, Hash("spec"), Hash("spec "))
}

func TestMatchMissesWithoutPersistedRevision(t *testing.T) {
	cache := NewCache(artifact.NewStore(t.TempDir()))
	match, err := cache.Match("server", "spec\n")
	require.NoError(t, err)
	assert.False(t, match)
}

func TestMatchBranchBySpecHash(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	cache := NewCache(store)

	spec := "server {\n  api {\n  }\n}\n"
	require.NoError(t, store.WriteSpec("server", spec))
	require.NoError(t, store.WriteBranch("server", &artifact.BranchRecord{
		SpecHash: Hash(spec),
		Children: []string{"api"},
	}))

	match, err := cache.Match("server", spec)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = cache.Match("server", spec+"changed\n")
	require.NoError(t, err)
	assert.False(t, match)
}

func TestMatchLeafByByteIdenticalSpec(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	cache := NewCache(store)

	require.NoError(t, store.WriteSpec("server/api", "timeout=30;\n"))
	// No context yet: an unclassified node never matches.
	match, err := cache.Match("server/api", "timeout=30;\n")
	require.NoError(t, err)
	assert.False(t, match)

	require.NoError(t, store.WriteContext("server/api", &provider.Context{}))
	match, err = cache.Match("server/api", "timeout=30;\n")
	require.NoError(t, err)
	assert.True(t, match)

	match, err = cache.Match("server/api", "timeout=60;\n")
	require.NoError(t, err)
	assert.False(t, match)
}

func TestInvalidateDropsSubtree(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	cache := NewCache(store)

	require.NoError(t, store.WriteSpec("server", "s\n"))
	require.NoError(t, store.WriteSpec("server/api", "a\n"))
	require.NoError(t, store.WriteContext("server/api", &provider.Context{}))

	require.NoError(t, cache.Invalidate("server"))
	match, err := cache.Match("server/api", "a\n")
	require.NoError(t, err)
	assert.False(t, match)
}
