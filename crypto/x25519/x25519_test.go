package x25519

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/omnibatch/types"
	"github.com/vocdoni/omnibatch/util"
)

func TestSharedSecretAgreement(t *testing.T) {
	c := qt.New(t)

	alicePub, alicePriv, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	bobPub, bobPriv, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	s1, err := SharedSecret(alicePriv, bobPub)
	c.Assert(err, qt.IsNil)
	s2, err := SharedSecret(bobPriv, alicePub)
	c.Assert(err, qt.IsNil)
	c.Assert(s1, qt.Equals, s2)
	c.Assert(alicePriv.Public(), qt.Equals, alicePub)
}

func TestCipherRoundTrip(t *testing.T) {
	c := qt.New(t)

	_, userPriv, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	clusterPub, clusterPriv, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	userCipher, err := NewSharedCipher(userPriv, clusterPub)
	c.Assert(err, qt.IsNil)
	clusterCipher, err := NewSharedCipher(clusterPriv, userPriv.Public())
	c.Assert(err, qt.IsNil)

	nonce := types.Nonce(util.Random16())
	values := []uint64{3, 1, 1_000_000_000, 0, ^uint64(0)}
	cts, err := userCipher.Encrypt(values, nonce)
	c.Assert(err, qt.IsNil)
	c.Assert(cts, qt.HasLen, len(values))

	plain, err := clusterCipher.Decrypt(cts, nonce)
	c.Assert(err, qt.IsNil)
	c.Assert(plain, qt.DeepEquals, values)
}

func TestCipherRejectsWrongNonce(t *testing.T) {
	c := qt.New(t)

	cipher := NewCipher(util.Random32())
	nonce := types.NonceFromUint64(1)
	cts, err := cipher.Encrypt([]uint64{42}, nonce)
	c.Assert(err, qt.IsNil)

	_, err = cipher.Decrypt(cts, types.NonceFromUint64(2))
	c.Assert(errors.Is(err, ErrInvalidCiphertext), qt.IsTrue)

	// same value, same key, different position must not decrypt either
	cts2, err := cipher.Encrypt([]uint64{0, 42}, nonce)
	c.Assert(err, qt.IsNil)
	_, err = cipher.Decrypt(cts2[1:], nonce)
	c.Assert(errors.Is(err, ErrInvalidCiphertext), qt.IsTrue)
}

func TestCipherFreshNonceChangesCiphertext(t *testing.T) {
	c := qt.New(t)

	cipher := NewCipher(util.Random32())
	a, err := cipher.Encrypt([]uint64{7}, types.Nonce(util.Random16()))
	c.Assert(err, qt.IsNil)
	b, err := cipher.Encrypt([]uint64{7}, types.Nonce(util.Random16()))
	c.Assert(err, qt.IsNil)
	c.Assert(a[0], qt.Not(qt.Equals), b[0])
}

func TestDeriveKey(t *testing.T) {
	c := qt.New(t)
	seed := util.RandomBytes(32)

	k1, err := DeriveKey(seed, "a")
	c.Assert(err, qt.IsNil)
	k2, err := DeriveKey(seed, "a")
	c.Assert(err, qt.IsNil)
	c.Assert(k1, qt.Equals, k2)
	k3, err := DeriveKey(seed, "b")
	c.Assert(err, qt.IsNil)
	c.Assert(k3, qt.Not(qt.Equals), k1)

	_, err = DeriveKey(seed[:8], "a")
	c.Assert(err, qt.ErrorMatches, "seed too short.*")
}
