package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id, err := NewID("rt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "rt_"), "unexpected id %q", id)
	assert.Len(t, id, len("rt_")+2*tokenBytes)

	other, err := NewID("rt")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	bare, err := NewID("")
	require.NoError(t, err)
	assert.Len(t, bare, 2*tokenBytes)
}

func TestNewIDReportsEntropyFailure(t *testing.T) {
	original := readRandom
	t.Cleanup(func() { readRandom = original })
	readRandom = func([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

	id, err := NewID("rt")
	assert.Error(t, err)
	assert.Empty(t, id)
}
