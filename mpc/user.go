package mpc

import (
	"fmt"

	"github.com/vocdoni/omnibatch/crypto/x25519"
	"github.com/vocdoni/omnibatch/types"
	"github.com/vocdoni/omnibatch/util"
)

// User is the client side of the Shared encryption: it holds the user x25519
// key and encrypts inputs for, and decrypts outputs from, a cluster.
type User struct {
	priv   x25519.PrivateKey
	pub    types.PublicKey
	cipher *x25519.Cipher
}

// NewUser creates a user key pair bound to the given cluster public key.
func NewUser(cluster types.PublicKey) (*User, error) {
	_, priv, err := x25519.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewUserWithKey(priv, cluster)
}

// NewUserWithKey binds an existing private key to the given cluster public key.
func NewUserWithKey(priv x25519.PrivateKey, cluster types.PublicKey) (*User, error) {
	cipher, err := x25519.NewSharedCipher(priv, cluster)
	if err != nil {
		return nil, err
	}
	return &User{priv: priv, pub: priv.Public(), cipher: cipher}, nil
}

// PublicKey returns the user x25519 public key.
func (u *User) PublicKey() types.PublicKey {
	return u.pub
}

// Encrypt encrypts the values under a fresh nonce.
func (u *User) Encrypt(values ...uint64) ([]types.Ciphertext, types.Nonce, error) {
	nonce := types.Nonce(util.Random16())
	cts, err := u.cipher.Encrypt(values, nonce)
	if err != nil {
		return nil, types.Nonce{}, err
	}
	return cts, nonce, nil
}

// EncryptValue encrypts a single scalar under a fresh nonce.
func (u *User) EncryptValue(v uint64) (types.Ciphertext, types.Nonce, error) {
	cts, nonce, err := u.Encrypt(v)
	if err != nil {
		return types.Ciphertext{}, types.Nonce{}, err
	}
	return cts[0], nonce, nil
}

// EncryptZeros returns the encrypted zero balances a new account is created
// with. Each balance gets its own nonce, since a ciphertext only decrypts at
// the position it was produced for.
func (u *User) EncryptZeros() ([types.NumAssets]types.EncryptedBalance, error) {
	var zeros [types.NumAssets]types.EncryptedBalance
	for i := range zeros {
		ct, nonce, err := u.EncryptValue(0)
		if err != nil {
			return zeros, err
		}
		zeros[i] = types.EncryptedBalance{Ciphertext: ct, Nonce: nonce}
	}
	return zeros, nil
}

// EncryptOrder encrypts the (pair, direction, amount) triple of an order.
func (u *User) EncryptOrder(pair types.PairID, dir types.Direction, amount uint64) ([3]types.Ciphertext, types.Nonce, error) {
	var order [3]types.Ciphertext
	cts, nonce, err := u.Encrypt(uint64(pair), uint64(dir), amount)
	if err != nil {
		return order, types.Nonce{}, err
	}
	copy(order[:], cts)
	return order, nonce, nil
}

// Decrypt decrypts values produced for this user.
func (u *User) Decrypt(cts []types.Ciphertext, nonce types.Nonce) ([]uint64, error) {
	return u.cipher.Decrypt(cts, nonce)
}

// DecryptBalance decrypts an encrypted balance.
func (u *User) DecryptBalance(b types.EncryptedBalance) (uint64, error) {
	values, err := u.cipher.Decrypt([]types.Ciphertext{b.Ciphertext}, b.Nonce)
	if err != nil {
		return 0, fmt.Errorf("decrypt balance: %w", err)
	}
	return values[0], nil
}
