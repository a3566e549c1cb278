package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
)

// MaxRequestSkew is the maximum distance between the timestamp of a signed
// request and the server clock.
const MaxRequestSkew = 5 * time.Minute

// Signed is a request carrying an Auth.
type Signed interface {
	auth() *Auth
}

// signedPayload returns the bytes covered by the signature of req.
func signedPayload(req Signed) ([]byte, error) {
	a := req.auth()
	sig := a.Signature
	a.Signature = nil
	defer func() { a.Signature = sig }()
	return json.Marshal(req)
}

// SignRequest stamps req with the action, the current time and a fresh nonce
// and signs it with the wallet key.
func SignRequest(keys *ethereum.SignKeys, action string, req Signed) error {
	a := req.auth()
	a.Action = action
	a.Timestamp = time.Now().Unix()
	a.Nonce = uuid.New()
	payload, err := signedPayload(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if a.Signature, err = keys.SignEthereum(payload); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	return nil
}

// signer verifies req was signed for action within the allowed skew and not
// seen before, and returns the address of the signer.
func (a *API) signer(action string, req Signed) (common.Address, error) {
	auth := req.auth()
	if auth.Action != action {
		return common.Address{}, ErrInvalidSignature.Withf("signed for %q", auth.Action)
	}
	skew := time.Since(time.Unix(auth.Timestamp, 0))
	if skew > MaxRequestSkew || skew < -MaxRequestSkew {
		return common.Address{}, ErrStaleRequest.Withf("timestamp %d", auth.Timestamp)
	}
	payload, err := signedPayload(req)
	if err != nil {
		return common.Address{}, ErrMalformedBody.WithErr(err)
	}
	addr, err := ethereum.AddrFromSignature(payload, auth.Signature)
	if err != nil {
		return common.Address{}, ErrInvalidSignature.WithErr(err)
	}
	// signatures are single use within the skew window
	if ok, _ := a.seen.ContainsOrAdd(auth.Signature.String(), struct{}{}); ok {
		return common.Address{}, ErrStaleRequest.With("request already processed")
	}
	return addr, nil
}
