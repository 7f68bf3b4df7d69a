package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/kv"
)

func TestPutGetDelete(t *testing.T) {
	e := kv.New()

	require.NoError(t, e.Put("a", []byte("1")))
	v, ok, err := e.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	require.NoError(t, e.Delete("a"))
	_, ok, err = e.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetMissingKey(t *testing.T) {
	e := kv.New()
	_, ok, err := e.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeekPrefixOrderedAndBounded(t *testing.T) {
	e := kv.New()
	require.NoError(t, e.Put("approvals:global:alice:res:GET", []byte("1")))
	require.NoError(t, e.Put("approvals:global:alice:res:POST", []byte("2")))
	require.NoError(t, e.Put("approvals:global:bob:res:GET", []byte("3")))
	require.NoError(t, e.Put("other:key", []byte("4")))

	it := e.SeekPrefix("approvals:global:alice:")
	var keys []string
	for it.Valid() {
		keys = append(keys, it.Key())
		it.Next()
	}
	assert.Equal(t, []string{
		"approvals:global:alice:res:GET",
		"approvals:global:alice:res:POST",
	}, keys)
}

func TestSeekPrefixNoMatches(t *testing.T) {
	e := kv.New()
	require.NoError(t, e.Put("x", []byte("1")))

	it := e.SeekPrefix("nomatch:")
	assert.False(t, it.Valid())
}

func TestCount(t *testing.T) {
	e := kv.New()
	assert.Equal(t, 0, e.Count())
	require.NoError(t, e.Put("a", []byte("1")))
	require.NoError(t, e.Put("b", []byte("2")))
	assert.Equal(t, 2, e.Count())
}

func TestPutOverwrites(t *testing.T) {
	e := kv.New()
	require.NoError(t, e.Put("a", []byte("1")))
	require.NoError(t, e.Put("a", []byte("2")))
	v, ok, err := e.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(v))
}
