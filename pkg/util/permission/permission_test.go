package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subject map[string]TriState

func (s subject) HasPermission(p string) bool {
	return s.PermissionValue(p).Bool()
}

func (s subject) PermissionValue(p string) TriState {
	return s[p]
}

func TestTriState_Bool(t *testing.T) {
	assert.True(t, True.Bool())
	assert.False(t, False.Bool())
	assert.False(t, Undefined.Bool())
}

func TestCheck(t *testing.T) {
	ok, err := Check(func(string) TriState { return True }, "vanish.use")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Check(nil, "vanish.use")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Check(func(string) TriState { panic("backend down") }, "vanish.use")
	require.Error(t, err)
	assert.False(t, ok, "panicking check must deny")
}

func TestHas(t *testing.T) {
	s := subject{"vanish.use": True, "vanish.other": False}

	ok, err := Has(s, "vanish.use")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = Has(s, "vanish.other")
	assert.False(t, ok)

	ok, _ = Has(nil, "vanish.use")
	assert.False(t, ok)
}
