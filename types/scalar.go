package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// CiphertextSize is the fixed width of an encrypted scalar.
const CiphertextSize = 32

// Ciphertext is an opaque encrypted scalar (u8 or u64 semantically).
type Ciphertext [CiphertextSize]byte

func (c Ciphertext) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// IsZero reports whether the ciphertext holds only zero bytes, which is the
// state of a freshly allocated slot that no circuit wrote yet.
func (c Ciphertext) IsZero() bool {
	return c == Ciphertext{}
}

func (c Ciphertext) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Ciphertext) UnmarshalText(data []byte) error {
	return decodeFixedHex(string(data), c[:])
}

// Nonce is a u128 nonce, little-endian. Every ciphertext is only valid
// together with the nonce it was produced under.
type Nonce [16]byte

// NonceFromUint64 builds a nonce holding a small integer.
func NonceFromUint64(x uint64) Nonce {
	var n Nonce
	binary.LittleEndian.PutUint64(n[:8], x)
	return n
}

// IsZero reports whether the nonce is zero.
func (n Nonce) IsZero() bool {
	return n == Nonce{}
}

func (n Nonce) String() string {
	return "0x" + hex.EncodeToString(n[:])
}

func (n Nonce) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Nonce) UnmarshalText(data []byte) error {
	return decodeFixedHex(string(data), n[:])
}

// PublicKey is a user or cluster x25519 encryption public key.
type PublicKey [32]byte

func (k PublicKey) String() string {
	return "0x" + hex.EncodeToString(k[:])
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(data []byte) error {
	return decodeFixedHex(string(data), k[:])
}

func decodeFixedHex(s string, dst []byte) error {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("invalid length %d, expected %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}
