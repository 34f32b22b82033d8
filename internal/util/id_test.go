package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestNewTokenPrefix(t *testing.T) {
	token := NewToken("rft")
	assert.True(t, strings.HasPrefix(token, "rft_"))
	assert.Len(t, strings.TrimPrefix(token, "rft_"), 64)
	assert.Len(t, NewToken(""), 64)
}
