package session

import (
	"context"
	"testing"

	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/wallpaper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReusesLiveSession(t *testing.T) {
	store := newStore()
	store.records["a"] = deskRecord()
	reg := NewRegistry(store, &fakeRenderer{}, report.NewCollector(0))

	s1, err := reg.Open("a")
	require.NoError(t, err)
	s2, err := reg.Open("a")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	_, err = reg.Open("")
	assert.Error(t, err)

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, s1, got)
	_, ok = reg.Get("b")
	assert.False(t, ok)
}

func TestRegistryReopensAfterSave(t *testing.T) {
	store := newStore()
	reg := NewRegistry(store, &fakeRenderer{}, nil)
	ctx := context.Background()

	s, err := reg.Open("a")
	require.NoError(t, err)
	edit(t, s, func(r *wallpaper.Record) { *r = deskRecord() })
	require.NoError(t, s.Save(ctx))

	_, ok := reg.Get("a")
	assert.False(t, ok)
	assert.Empty(t, reg.IDs())

	next, err := reg.Open("a")
	require.NoError(t, err)
	assert.NotSame(t, s, next)
	assert.False(t, next.IsNew())
	assert.Equal(t, Clean, next.State())
}

func TestRegistryCloseAllRollsBack(t *testing.T) {
	store := newStore()
	store.records["a"] = deskRecord()
	store.records["b"] = deskRecord()
	renderer := &fakeRenderer{}
	reg := NewRegistry(store, renderer, nil)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		s, err := reg.Open(id)
		require.NoError(t, err)
		edit(t, s, func(r *wallpaper.Record) { r.Opacity = 0.9 })
		require.NoError(t, s.Try(ctx))
	}
	assert.Equal(t, []string{"a", "b"}, reg.IDs())

	require.NoError(t, reg.CloseAll(ctx))
	assert.Empty(t, reg.IDs())

	calls := renderer.Calls()
	require.Len(t, calls, 4)
	for _, c := range calls[2:] {
		assert.Equal(t, 0.3, *c.patch.Opacity)
	}
}

func TestRegistryCloseAndDiscard(t *testing.T) {
	store := newStore()
	store.records["a"] = deskRecord()
	renderer := &fakeRenderer{}
	reg := NewRegistry(store, renderer, nil)
	ctx := context.Background()

	require.NoError(t, reg.Close(ctx, "missing"))

	s, err := reg.Open("a")
	require.NoError(t, err)
	edit(t, s, func(r *wallpaper.Record) { r.Opacity = 0.9 })
	require.NoError(t, s.Try(ctx))

	require.NoError(t, reg.Discard(ctx, "a"))
	assert.Equal(t, RolledBack, s.State())
	assert.Len(t, renderer.Calls(), 1)
}
