package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reigadegr/cc-proxy-go/internal/config"
)

func TestStore_RebuildReplacesSelector(t *testing.T) {
	s := NewStore(&config.Config{Upstream: testUpstreams()})
	first := s.Current()
	require.NotNil(t, first)

	_, ok := first.Next()
	require.True(t, ok)

	s.Rebuild(&config.Config{Upstream: testUpstreams()})
	second := s.Current()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	got, ok := second.Next()
	require.True(t, ok)
	assert.Equal(t, "key1a", got.APIKey, "a rebuilt selector starts its rotation over")
}

func TestStore_EmptyUpstreamsYieldsNilSelector(t *testing.T) {
	s := NewStore(&config.Config{})
	assert.Nil(t, s.Current())
}

func TestStore_RebuildIfChangedSkipsRebuildOnUnrelatedFieldChange(t *testing.T) {
	old := &config.Config{Upstream: testUpstreams(), LogReqBody: false}
	s := NewStore(old)

	first := s.Current()
	require.NotNil(t, first)

	got, ok := first.Next()
	require.True(t, ok)
	assert.Equal(t, "key1a", got.APIKey)

	next := &config.Config{Upstream: testUpstreams(), LogReqBody: true}
	s.RebuildIfChanged(old, next)

	assert.Same(t, first, s.Current(), "an unrelated field change must not rebuild the selector")

	got, ok = s.Current().Next()
	require.True(t, ok)
	assert.Equal(t, "key2a", got.APIKey, "rotation must advance from where it left off, not restart")
	assert.Equal(t, 1, got.UpstreamIndex)
}

func TestStore_RebuildIfChangedRebuildsWhenUpstreamListChanges(t *testing.T) {
	old := &config.Config{Upstream: testUpstreams()}
	s := NewStore(old)
	first := s.Current()
	require.NotNil(t, first)

	next := &config.Config{Upstream: []config.UpstreamConfig{{Endpoint: "https://other.invalid", APIKeys: []string{"other-key"}}}}
	s.RebuildIfChanged(old, next)

	second := s.Current()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	got, ok := second.Next()
	require.True(t, ok)
	assert.Equal(t, "other-key", got.APIKey)
}
