package registry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/support/registry"
)

type fakeCloser struct {
	closed int
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed++
	return f.err
}

func TestRegistry_CloseAllClosesEverything(t *testing.T) {
	reg := registry.New()
	a, b := &fakeCloser{}, &fakeCloser{}
	require.NoError(t, reg.Register("poller:a", a))
	require.NoError(t, reg.Register("poller:b", b))

	require.NoError(t, reg.CloseAll())

	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_CloseAllAggregatesErrors(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("a", &fakeCloser{err: errors.New("a failed")}))
	require.NoError(t, reg.Register("b", &fakeCloser{err: errors.New("b failed")}))

	err := reg.CloseAll()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestRegistry_ReplaceClosesPrevious(t *testing.T) {
	reg := registry.New()
	old, replacement := &fakeCloser{}, &fakeCloser{}
	require.NoError(t, reg.Register("x", old))
	require.NoError(t, reg.Register("x", replacement))

	assert.Equal(t, 1, old.closed)
	assert.Equal(t, 0, replacement.closed)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_UnregisterDoesNotClose(t *testing.T) {
	reg := registry.New()
	c := &fakeCloser{}
	require.NoError(t, reg.Register("x", c))
	reg.Unregister("x")
	reg.Unregister("missing")

	require.NoError(t, reg.CloseAll())
	assert.Equal(t, 0, c.closed)
}

func TestRegistry_RegisterAfterCloseAllClosesImmediately(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.CloseAll())

	c := &fakeCloser{}
	require.NoError(t, reg.Register("late", c))
	assert.Equal(t, 1, c.closed)
	assert.Equal(t, 0, reg.Len())

	reg.Reopen()
	require.NoError(t, reg.Register("late", c))
	assert.Equal(t, 1, reg.Len())
}
