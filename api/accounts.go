package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// addressParam parses the address URL parameter.
func addressParam(r *http.Request) (common.Address, error) {
	s := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrMalformedParam.Withf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// createUser registers the account of the signer
// POST /users
func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	req := &CreateUserRequest{}
	caller, ok := a.decodeSigned(w, r, ActionCreateUser, req)
	if !ok {
		return
	}
	if err := a.seq.CreateUserAccount(caller, req.PubKey, req.Balances); err != nil {
		errorFor(err).Write(w)
		return
	}
	log.Infow("user account created", "user", caller.Hex(), "pubKey", req.PubKey.String())
	httpWriteOK(w)
}

// user returns the encrypted ledger of a user
// GET /users/{address}
func (a *API) user(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		err.(Error).Write(w)
		return
	}
	u, err := a.storage.User(addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrUserNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, u)
}

// wallet returns the plaintext token balances of a wallet
// GET /users/{address}/wallet
func (a *API) wallet(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		err.(Error).Write(w)
		return
	}
	res := &WalletResponse{Owner: addr}
	for asset := types.AssetID(0); asset < types.NumAssets; asset++ {
		if res.Balances[asset], err = a.storage.TokenBalance(custody.External(addr, asset)); err != nil {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
	}
	httpWriteJSON(w, res)
}

// faucet mints test tokens into the wallet of the signer
// POST /faucet
func (a *API) faucet(w http.ResponseWriter, r *http.Request) {
	req := &FaucetRequest{}
	caller, ok := a.decodeSigned(w, r, ActionFaucet, req)
	if !ok {
		return
	}
	if err := a.seq.Faucet(caller, req.Asset, req.Amount); err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// deposit moves tokens into the vault and queues the encrypted credit
// POST /deposits
func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	req := &BalanceRequest{}
	caller, ok := a.decodeSigned(w, r, ActionDeposit, req)
	if !ok {
		return
	}
	id, err := a.seq.AddBalance(caller, req.Asset, req.Amount, req.Encrypted)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// withdraw queues a withdrawal
// POST /withdrawals
func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	req := &BalanceRequest{}
	caller, ok := a.decodeSigned(w, r, ActionWithdraw, req)
	if !ok {
		return
	}
	id, err := a.seq.SubBalance(caller, req.Asset, req.Amount, req.Encrypted)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// transfer queues an internal transfer
// POST /transfers
func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	req := &TransferRequest{}
	caller, ok := a.decodeSigned(w, r, ActionTransfer, req)
	if !ok {
		return
	}
	id, err := a.seq.InternalTransfer(caller, req.Recipient, req.Asset, req.Encrypted)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// computation returns the status of a computation
// GET /computations/{computationId}
func (a *API) computation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, ComputationURLParam))
	if err != nil {
		ErrMalformedParam.Withf("invalid computation id: %v", err).Write(w)
		return
	}
	st, err := a.storage.ComputationStatus(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrComputationNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, st)
}
