package auth

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountEnvelopeRequiresMFA(t *testing.T) {
	env := &accountEnvelope{}
	env.DSInfo.HSAVersion = 2
	env.DSInfo.HSAChallengeRequired = true
	env.DSInfo.HasICloudQualifyingDevice = true

	assert.True(t, env.requiresMFA())

	env.DSInfo.HasICloudQualifyingDevice = false
	assert.False(t, env.requiresMFA())
}

func TestAccountEnvelopeRequires2SA(t *testing.T) {
	env := &accountEnvelope{}
	env.DSInfo.HSAVersion = 1
	env.DSInfo.HSAChallengeRequired = true

	assert.True(t, env.requires2SA())
	assert.False(t, env.requiresMFA())
}

func TestInteractiveCodeSourceReadsStdin(t *testing.T) {
	src := &InteractiveCodeSource{Reader: bufio.NewReader(strings.NewReader("123456\n"))}

	code, err := src.RequestCode(nil, "1234")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestEncodeDecodeBase64RoundTrip(t *testing.T) {
	original := []byte{0x01, 0x02, 0xff, 0x7e}

	encoded := encodeBase64(original)

	decoded, err := decodeBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
