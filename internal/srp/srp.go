// Package srp implements the client side of the SRP-6a password proof
// protocol per RFC 5054, as used by THE SERVICE's signin/init and
// signin/complete endpoints. Username salting is disabled: the SRP "x"
// value is computed without mixing in the account name, matching the
// server's deviation from vanilla RFC 5054.
//
// The 2048-bit group and SHA-256 hash are fixed; they are not configurable
// because the server negotiates neither.
package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidServerPublic is returned when the server's public value B is a
// multiple of N (the classic SRP-6a safety check): accepting it would let a
// malicious server force a known shared secret.
var ErrInvalidServerPublic = errors.New("srp: server public value B is invalid (B mod N == 0)")

// rfc5054Group2048Hex is the 2048-bit MODP group from RFC 5054 §A.
const rfc5054Group2048Hex = "AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050A37329CBB4A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918A9962F0B93B855F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14773BCA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB694B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73"

// Group holds the SRP N (prime) and g (generator).
type Group struct {
	N *big.Int
	G *big.Int
}

// RFC5054Group2048 returns the fixed 2048-bit group used by THE SERVICE.
func RFC5054Group2048() Group {
	n := new(big.Int)
	n.SetString(rfc5054Group2048Hex, 16)

	return Group{N: n, G: big.NewInt(2)}
}

// Protocol selects how the server-negotiated PBKDF2 digest is computed.
// THE SERVICE offers two: "s2k" hashes the password and uses the raw
// digest bytes as the PBKDF2 password input; "s2k_fo" uses the lowercase
// hex string of that digest instead.
type Protocol string

const (
	ProtocolS2K   Protocol = "s2k"
	ProtocolS2KFO Protocol = "s2k_fo"
)

// KeyLength is the PBKDF2 derived-key length THE SERVICE expects (32
// bytes, matching SHA-256's digest size).
const KeyLength = 32

// Client drives one SRP-6a exchange. Create one per login attempt.
type Client struct {
	group Group
	a     *big.Int // private ephemeral
	A     *big.Int // public ephemeral

	b *big.Int // server's public ephemeral, once known
	k *big.Int // multiplier parameter

	u    *big.Int
	s    *big.Int // premaster secret
	key  []byte
	salt []byte
	m1   []byte
	m2   []byte
}

// NewClient generates a fresh private/public ephemeral pair (a, A).
func NewClient(group Group) (*Client, error) {
	a, err := randomExponent(group.N)
	if err != nil {
		return nil, fmt.Errorf("srp: generating private ephemeral: %w", err)
	}

	c := &Client{group: group, a: a}
	c.A = new(big.Int).Exp(group.G, a, group.N)
	c.k = computeK(group)

	return c, nil
}

// PublicValueHex returns A, the client's public ephemeral, as uppercase hex
// — the wire format THE SERVICE's signin/init expects.
func (c *Client) PublicValueHex() string {
	return fmt.Sprintf("%X", c.A)
}

// computeK computes k = H(N || pad(g)) per RFC 5054 §2.5.3.
func computeK(group Group) *big.Int {
	h := sha256.New()
	h.Write(group.N.Bytes())
	h.Write(padToN(group.G, group.N))

	return new(big.Int).SetBytes(h.Sum(nil))
}

// padToN left-pads b's bytes to the same byte length as n.
func padToN(b, n *big.Int) []byte {
	size := (n.BitLen() + 7) / 8
	raw := b.Bytes()

	if len(raw) >= size {
		return raw
	}

	out := make([]byte, size)
	copy(out[size-len(raw):], raw)

	return out
}

func randomExponent(n *big.Int) (*big.Int, error) {
	// 256 bits of entropy is standard practice for SRP private exponents
	// and far exceeds what's needed against this 2048-bit group.
	const exponentBytes = 32

	buf := make([]byte, exponentBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(buf), nil
}

// DeriveKey computes the PBKDF2 password key for the given protocol, salt,
// and iteration count, then completes the exchange against the server's
// public value b, producing M1 (to send) and M2 (to verify the server's
// response against).
func (c *Client) DeriveKey(
	protocol Protocol, password string, salt []byte, iterations int, serverPublicHex string,
) error {
	b, ok := new(big.Int).SetString(serverPublicHex, 16)
	if !ok {
		return fmt.Errorf("srp: malformed server public value")
	}

	// SRP-6a safety check: reject B ≡ 0 (mod N).
	if new(big.Int).Mod(b, c.group.N).Sign() == 0 {
		return ErrInvalidServerPublic
	}

	c.b = b
	c.salt = salt

	key, err := derivePasswordKey(protocol, password, salt, iterations)
	if err != nil {
		return err
	}

	x := computeX(salt, key)
	u := computeU(c.A, b)

	if u.Sign() == 0 {
		return fmt.Errorf("srp: u == 0, aborting exchange")
	}

	c.u = u

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(c.group.G, x, c.group.N)
	kgx := new(big.Int).Mul(c.k, gx)
	kgx.Mod(kgx, c.group.N)

	base := new(big.Int).Sub(b, kgx)
	base.Mod(base, c.group.N)

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)

	s := new(big.Int).Exp(base, exp, c.group.N)
	c.s = s

	sessionKey := sha256.Sum256(s.Bytes())
	c.key = sessionKey[:]

	c.m1 = computeM1(c.group, c.A, b, c.key)
	c.m2 = computeM2(c.group, c.A, c.m1, c.key)

	return nil
}

// derivePasswordKey applies PBKDF2-HMAC-SHA256 per the negotiated protocol.
// "s2k" feeds the raw SHA-256 digest bytes of the password as the PBKDF2
// password input; "s2k_fo" feeds the lowercase hex encoding of that same
// digest instead — the two protocols THE SERVICE negotiates.
func derivePasswordKey(protocol Protocol, password string, salt []byte, iterations int) ([]byte, error) {
	digest := sha256.Sum256([]byte(password))

	var pwInput []byte

	switch protocol {
	case ProtocolS2K:
		pwInput = digest[:]
	case ProtocolS2KFO:
		pwInput = []byte(fmt.Sprintf("%x", digest))
	default:
		return nil, fmt.Errorf("srp: unsupported protocol %q", protocol)
	}

	return pbkdf2SHA256(pwInput, salt, iterations), nil
}

// computeX derives the private key exponent x = H(salt || key), with
// username salting disabled.
func computeX(salt, key []byte) *big.Int {
	h := sha256.New()
	h.Write(salt)
	h.Write(key)

	return new(big.Int).SetBytes(h.Sum(nil))
}

func computeU(a, b *big.Int) *big.Int {
	h := sha256.New()
	h.Write(a.Bytes())
	h.Write(b.Bytes())

	return new(big.Int).SetBytes(h.Sum(nil))
}

func computeM1(group Group, a, b *big.Int, key []byte) []byte {
	h := sha256.New()
	h.Write(padToN(a, group.N))
	h.Write(padToN(b, group.N))
	h.Write(key)

	return h.Sum(nil)
}

func computeM2(group Group, a *big.Int, m1, key []byte) []byte {
	h := sha256.New()
	h.Write(padToN(a, group.N))
	h.Write(m1)
	h.Write(key)

	return h.Sum(nil)
}

// M1 returns the client evidence message to send to signin/complete.
func (c *Client) M1() []byte { return c.m1 }

// M2 returns the expected server evidence message.
func (c *Client) M2() []byte { return c.m2 }
