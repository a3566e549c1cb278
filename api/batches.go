package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/storage"
)

// placeOrder queues an encrypted order for the current batch
// POST /orders
func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	req := &PlaceOrderRequest{}
	caller, ok := a.decodeSigned(w, r, ActionPlaceOrder, req)
	if !ok {
		return
	}
	id, err := a.seq.PlaceOrder(caller, req.Order)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	log.Debugw("order received", "user", caller.Hex(), "computation", id.String())
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// settleOrder queues the payout of the resting order of the signer
// POST /settlements
func (a *API) settleOrder(w http.ResponseWriter, r *http.Request) {
	req := &SettleOrderRequest{}
	caller, ok := a.decodeSigned(w, r, ActionSettleOrder, req)
	if !ok {
		return
	}
	id, err := a.seq.SettleOrder(caller, req.PairID, req.Direction)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// batch returns the accumulator of the current batch
// GET /batch
func (a *API) batch(w http.ResponseWriter, r *http.Request) {
	acc, err := a.storage.Accumulator()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrBatchNotInitialized.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, acc)
}

func batchIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, BatchURLParam), 10, 64)
	if err != nil {
		return 0, ErrMalformedParam.Withf("invalid batch id: %v", err)
	}
	return id, nil
}

// batchLog returns the log of an executed batch
// GET /batches/{batchId}
func (a *API) batchLog(w http.ResponseWriter, r *http.Request) {
	id, err := batchIDParam(r)
	if err != nil {
		err.(Error).Write(w)
		return
	}
	l, err := a.seq.BatchLog(id)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, l)
}

// batchProof returns the inclusion proof of a batch commitment
// GET /batches/{batchId}/proof
func (a *API) batchProof(w http.ResponseWriter, r *http.Request) {
	id, err := batchIDParam(r)
	if err != nil {
		err.(Error).Write(w)
		return
	}
	if !a.seq.Results().Has(id) {
		ErrBatchLogNotFound.Write(w)
		return
	}
	proof, err := a.seq.Results().GenProof(id)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}

// resultsRoot returns the root of the batch commitment tree
// GET /results/root
func (a *API) resultsRoot(w http.ResponseWriter, r *http.Request) {
	root, err := a.seq.Results().Root()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &RootResponse{Root: root})
}
