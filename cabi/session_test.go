package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

const vectorYAML = `
kind: vector
count: 3
blocklength: 2
stride: 10
child:
  kind: builtin
  type: char
`

func newHostSession(t *testing.T, opts string) *session {
	t.Helper()
	t.Chdir(t.TempDir())
	s, err := openSession(opts)
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func TestSessionCommitAndPack(t *testing.T) {
	s := newHostSession(t, `{"backend": "host", "host_workers": 2}`)
	info, err := s.commit(vectorYAML)
	require.NoError(t, err)
	assert.Equal(t, int32(1), info.Handle)
	assert.Equal(t, "vector:int8", info.Key)
	assert.Equal(t, int64(6), info.NumElements)
	assert.Equal(t, "host_pack_vector_w1_fast", info.Pack)
	assert.Empty(t, info.Reason)

	src := make([]byte, 22)
	for i := range src {
		src[i] = byte(i)
	}
	packed := make([]byte, 6)
	require.NoError(t, s.transfer(offset.Pack, info.Handle, src, packed, 1))
	assert.Equal(t, []byte{0, 1, 10, 11, 20, 21}, packed)

	out := make([]byte, 22)
	require.NoError(t, s.transfer(offset.Unpack, info.Handle, packed, out, 1))
	assert.Equal(t, byte(21), out[21])
	assert.Equal(t, byte(0), out[2], "untouched bytes stay zero")
}

func TestSessionUnspecializedAndErrors(t *testing.T) {
	s := newHostSession(t, `{"max_nesting_level": 0}`)
	info, err := s.commit(vectorYAML)
	require.NoError(t, err)
	assert.Empty(t, info.Pack)
	assert.Contains(t, info.Reason, "nesting level 0")

	err = s.transfer(offset.Pack, info.Handle, make([]byte, 22), make([]byte, 6), 1)
	assert.Equal(t, pup.Unspecialized, pup.StatusOf(err))

	err = s.transfer(offset.Pack, 99, nil, nil, 1)
	assert.Equal(t, pup.InvalidArgument, pup.StatusOf(err))

	_, err = s.commit("kind: vector\ncount: 2\n")
	assert.Error(t, err)

	assert.True(t, s.free(info.Handle))
	assert.False(t, s.free(info.Handle))
}

func TestSessionRejectsBadOptions(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := openSession(`{"backend": "tpu"}`)
	assert.Error(t, err)
	_, err = openSession(`{not json`)
	assert.Error(t, err)
}
