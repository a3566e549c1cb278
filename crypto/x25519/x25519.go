// Package x25519 implements the key agreement and the scalar cipher used for
// encrypted balances and orders. A Shared value is encrypted under a key
// derived from the ECDH secret between a user key and the cluster key; a
// Protocol value under a key only the cluster holds. Each field of a value is
// bound to its nonce and position, so a ciphertext is only valid together with
// the nonce it was produced under.
package x25519

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/vocdoni/omnibatch/types"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

const (
	sharedInfo = "omnibatch/shared/v1"
	seedInfo   = "omnibatch/seed/"
	fieldInfo  = "omnibatch/field/"
	padSize    = 8
	macKeySize = 32
	tagSize    = types.CiphertextSize - padSize
)

// ErrInvalidCiphertext is returned when a ciphertext does not authenticate
// under the key and nonce it is decrypted with.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// PrivateKey is an x25519 private scalar.
type PrivateKey [32]byte

// GenerateKey generates a new x25519 key pair.
func GenerateKey() (types.PublicKey, PrivateKey, error) {
	var priv PrivateKey
	if _, err := rand.Read(priv[:]); err != nil {
		return types.PublicKey{}, priv, err
	}
	return priv.Public(), priv, nil
}

// DeriveKey derives a 32 byte key from seed, one per label. The same seed and
// label always give the same key.
func DeriveKey(seed []byte, label string) ([32]byte, error) {
	var key [32]byte
	if len(seed) < 16 {
		return key, fmt.Errorf("seed too short: %d bytes", len(seed))
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(seedInfo+label)), key[:]); err != nil {
		return key, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Public returns the public key of the scalar.
func (k PrivateKey) Public() types.PublicKey {
	var pub types.PublicKey
	curve25519.ScalarBaseMult((*[32]byte)(&pub), (*[32]byte)(&k))
	return pub
}

// SharedSecret performs the ECDH agreement and derives a 32 byte key with
// HKDF-SHA256.
func SharedSecret(priv PrivateKey, pub types.PublicKey) ([32]byte, error) {
	var secret [32]byte
	point, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return secret, fmt.Errorf("key agreement: %w", err)
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, point, nil, []byte(sharedInfo)), secret[:]); err != nil {
		return secret, fmt.Errorf("derive shared key: %w", err)
	}
	return secret, nil
}

// Cipher encrypts and decrypts u64 scalars under a symmetric key.
type Cipher struct {
	key [32]byte
}

// NewCipher returns a cipher for the given key.
func NewCipher(key [32]byte) *Cipher {
	return &Cipher{key: key}
}

// NewSharedCipher returns the cipher shared by the owners of priv and pub.
func NewSharedCipher(priv PrivateKey, pub types.PublicKey) (*Cipher, error) {
	secret, err := SharedSecret(priv, pub)
	if err != nil {
		return nil, err
	}
	return NewCipher(secret), nil
}

// Encrypt encrypts the values under the nonce. Value i is bound to position i.
func (c *Cipher) Encrypt(values []uint64, nonce types.Nonce) ([]types.Ciphertext, error) {
	out := make([]types.Ciphertext, len(values))
	for i, v := range values {
		pad, macKey, err := c.fieldKeys(nonce, i)
		if err != nil {
			return nil, err
		}
		var ct types.Ciphertext
		binary.LittleEndian.PutUint64(ct[:padSize], v)
		subtle.XORBytes(ct[:padSize], ct[:padSize], pad)
		copy(ct[padSize:], tag(macKey, ct[:padSize]))
		out[i] = ct
	}
	return out, nil
}

// Decrypt decrypts the ciphertexts produced by Encrypt with the same nonce.
func (c *Cipher) Decrypt(cts []types.Ciphertext, nonce types.Nonce) ([]uint64, error) {
	out := make([]uint64, len(cts))
	for i, ct := range cts {
		pad, macKey, err := c.fieldKeys(nonce, i)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare(ct[padSize:], tag(macKey, ct[:padSize])) != 1 {
			return nil, fmt.Errorf("%w: field %d", ErrInvalidCiphertext, i)
		}
		var plain [padSize]byte
		subtle.XORBytes(plain[:], ct[:padSize], pad)
		out[i] = binary.LittleEndian.Uint64(plain[:])
	}
	return out, nil
}

func (c *Cipher) fieldKeys(nonce types.Nonce, index int) ([]byte, []byte, error) {
	okm := make([]byte, padSize+macKeySize)
	r := hkdf.New(sha256.New, c.key[:], nonce[:], []byte(fieldInfo+strconv.Itoa(index)))
	if _, err := io.ReadFull(r, okm); err != nil {
		return nil, nil, fmt.Errorf("derive field key: %w", err)
	}
	return okm[:padSize], okm[padSize:], nil
}

func tag(macKey, body []byte) []byte {
	h := sha3.New256()
	h.Write(macKey)
	h.Write(body)
	return h.Sum(nil)[:tagSize]
}
