package nodepath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	cases := []struct {
		ancestry []string
		want     string
	}{
		{[]string{"root"}, "root"},
		{[]string{"root", "server"}, "server"},
		{[]string{"root", "server", "api"}, "server/api"},
		{nil, "root"},
		{[]string{"other"}, "other"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Join(tc.ancestry), "ancestry=%v", tc.ancestry)
	}
}

func TestChildCopies(t *testing.T) {
	base := []string{"root", "server"}
	child := Child(base, "api")
	assert.Equal(t, []string{"root", "server", "api"}, child)

	// The parent's ancestry is untouched by later appends.
	sibling := Child(base, "db")
	assert.Equal(t, []string{"root", "server", "api"}, child)
	assert.Equal(t, []string{"root", "server", "db"}, sibling)
	assert.Equal(t, []string{"root", "server"}, base)
}
