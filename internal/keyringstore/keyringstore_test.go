package keyringstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSetGetDeleteRoundTrip(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, Set("user@example.com", "s3cr3t"))

	got, err := Get("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got)

	require.NoError(t, Delete("user@example.com"))

	_, err = Get("user@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
