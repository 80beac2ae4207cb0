package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverDerive replays the server side of one SRP-6a exchange so the test
// can check the client produces a session key and M1 the server would
// actually accept, rather than merely "doesn't error".
func serverDerive(t *testing.T, group Group, password string, protocol Protocol, iterations int, salt []byte, clientA *big.Int) (serverB *big.Int, b *big.Int, verifier *big.Int, key []byte) {
	t.Helper()

	digest := sha256.Sum256([]byte(password))

	var pwInput []byte

	switch protocol {
	case ProtocolS2K:
		pwInput = digest[:]
	case ProtocolS2KFO:
		pwInput = []byte(hexLower(digest[:]))
	}

	derivedKey := pbkdf2SHA256(pwInput, salt, iterations)
	x := computeX(salt, derivedKey)

	v := new(big.Int).Exp(group.G, x, group.N)

	bPriv, err := randomExponent(group.N)
	require.NoError(t, err)

	k := computeK(group)

	kv := new(big.Int).Mul(k, v)
	kv.Mod(kv, group.N)

	gb := new(big.Int).Exp(group.G, bPriv, group.N)

	bPub := new(big.Int).Add(gb, kv)
	bPub.Mod(bPub, group.N)

	u := computeU(clientA, bPub)

	// S = (A * v^u) ^ b mod N
	vu := new(big.Int).Exp(v, u, group.N)
	avu := new(big.Int).Mul(clientA, vu)
	avu.Mod(avu, group.N)

	s := new(big.Int).Exp(avu, bPriv, group.N)

	sessionKey := sha256.Sum256(s.Bytes())

	return bPub, bPriv, v, sessionKey[:]
}

func hexLower(b []byte) string {
	const hexdigits = "0123456789abcdef"

	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[2*i] = hexdigits[c>>4]
		out[2*i+1] = hexdigits[c&0x0f]
	}

	return string(out)
}

func TestSRPExchangeMatchesServerSessionKey(t *testing.T) {
	group := RFC5054Group2048()
	password := "correct horse battery staple"
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	const iterations = 20000

	client, err := NewClient(group)
	require.NoError(t, err)

	serverB, _, _, serverKey := serverDerive(t, group, password, ProtocolS2K, iterations, salt, client.A)

	err = client.DeriveKey(ProtocolS2K, password, salt, iterations, serverB.Text(16))
	require.NoError(t, err)

	assert.Equal(t, serverKey, client.key)
	assert.NotEmpty(t, client.M1())
	assert.NotEmpty(t, client.M2())
}

func TestSRPExchangeRejectsZeroServerPublic(t *testing.T) {
	group := RFC5054Group2048()

	client, err := NewClient(group)
	require.NoError(t, err)

	err = client.DeriveKey(ProtocolS2K, "password", []byte("salt"), 1000, "00")
	assert.ErrorIs(t, err, ErrInvalidServerPublic)
}

func TestSRPExchangeS2KFOProtocol(t *testing.T) {
	group := RFC5054Group2048()
	password := "another-password"
	salt := []byte("fixed-salt-for-test")

	const iterations = 10000

	client, err := NewClient(group)
	require.NoError(t, err)

	serverB, _, _, serverKey := serverDerive(t, group, password, ProtocolS2KFO, iterations, salt, client.A)

	err = client.DeriveKey(ProtocolS2KFO, password, salt, iterations, serverB.Text(16))
	require.NoError(t, err)

	assert.Equal(t, serverKey, client.key)
}

func TestPublicValueHexIsUppercase(t *testing.T) {
	group := RFC5054Group2048()

	client, err := NewClient(group)
	require.NoError(t, err)

	hexVal := client.PublicValueHex()
	assert.NotEmpty(t, hexVal)

	for _, r := range hexVal {
		if r >= 'a' && r <= 'z' {
			t.Fatalf("expected uppercase hex, got %q", hexVal)
		}
	}
}
