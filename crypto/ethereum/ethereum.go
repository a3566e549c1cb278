// Package ethereum wraps the secp256k1 keys used to identify wallets and to
// sign protocol messages (MPC outputs, oracle price feeds) following the
// Ethereum signed message convention.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/omnibatch/util"
)

const (
	// SignatureLength is the size of an ECDSA signature in hexString format
	SignatureLength = ethcrypto.SignatureLength
	// PubKeyLengthBytes is the size of a Public Key
	PubKeyLengthBytes = 33
	// PubKeyLengthBytesUncompressed is the size of a uncompressed Public Key
	PubKeyLengthBytesUncompressed = 65
	// SigningPrefix is the prefix added when hashing
	SigningPrefix = "\u0019Ethereum Signed Message:\n"
)

// SignKeys represents an ECDSA pair of keys for signing.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an ECDSA pair of keys for signing
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate generates new keys
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private hex key
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the public compressed and private keys as hex strings
func (k *SignKeys) HexString() (string, string) {
	pubHexComp := fmt.Sprintf("%x", ethcrypto.CompressPubkey(&k.Public))
	privHex := fmt.Sprintf("%x", ethcrypto.FromECDSA(&k.Private))
	return pubHexComp, privHex
}

// PublicKey returns the compressed public key
func (k *SignKeys) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the SignKeys ethereum address
func (k *SignKeys) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the ethereum Address as string
func (k *SignKeys) AddressString() string {
	return ethcrypto.PubkeyToAddress(k.Public).String()
}

// SignEthereum signs a message. Message is a normal string (no HexString nor
// a Hash).
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	signature, err := ethcrypto.Sign(Hash(message), &k.Private)
	if err != nil {
		return nil, err
	}
	return signature, nil
}

// AddrFromPublicKey standalone function to obtain the Ethereum address from a
// ECDSA public key, either compressed or not.
func AddrFromPublicKey(pub []byte) (common.Address, error) {
	var pubHex string
	switch len(pub) {
	case PubKeyLengthBytes:
		pk, err := ethcrypto.DecompressPubkey(pub)
		if err != nil {
			return common.Address{}, fmt.Errorf("cannot decompress public key: %w", err)
		}
		return ethcrypto.PubkeyToAddress(*pk), nil
	case PubKeyLengthBytesUncompressed:
		pubHex = hex.EncodeToString(pub)
	default:
		return common.Address{}, fmt.Errorf("invalid public key length %d", len(pub))
	}
	pk, err := ethcrypto.UnmarshalPubkey(common.FromHex(pubHex))
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pk), nil
}

// PubKeyFromSignature recovers the compressed ECDSA public key that created
// the signature of a message.
func PubKeyFromSignature(message, signature []byte) ([]byte, error) {
	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("signature length not correct (%d)", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] > 1 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("bad recovery id %d", sig[64])
	}
	pubKey, err := ethcrypto.SigToPub(Hash(message), sig)
	if err != nil {
		return nil, fmt.Errorf("sigToPub %w", err)
	}
	return ethcrypto.CompressPubkey(pubKey), nil
}

// AddrFromSignature recovers the Ethereum address that created the signature
// of a message.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	pub, err := PubKeyFromSignature(message, signature)
	if err != nil {
		return common.Address{}, err
	}
	return AddrFromPublicKey(pub)
}

// Hash data adding the Ethereum signed message prefix and length, then
// keccak256.
func Hash(data []byte) []byte {
	payloadToSign := fmt.Sprintf("%s%d%s", SigningPrefix, len(data), data)
	return HashRaw([]byte(payloadToSign))
}

// HashRaw hashes data with no prefix.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}
