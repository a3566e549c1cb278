package api

import (
	"net/http"

	"github.com/vocdoni/omnibatch/log"
)

// pause toggles the paused flag of the pool
// POST /admin/pause
func (a *API) pause(w http.ResponseWriter, r *http.Request) {
	req := &PauseRequest{}
	caller, ok := a.decodeSigned(w, r, ActionPause, req)
	if !ok {
		return
	}
	if err := a.seq.SetPaused(caller, req.Paused); err != nil {
		errorFor(err).Write(w)
		return
	}
	log.Infow("pool pause toggled", "paused", req.Paused, "by", caller.Hex())
	httpWriteOK(w)
}

// liquidity adds or removes reserve liquidity
// POST /admin/liquidity
func (a *API) liquidity(w http.ResponseWriter, r *http.Request) {
	req := &LiquidityRequest{}
	caller, ok := a.decodeSigned(w, r, ActionLiquidity, req)
	if !ok {
		return
	}
	var err error
	if req.Remove {
		err = a.seq.RemoveLiquidity(caller, req.Asset, req.Amount)
	} else {
		err = a.seq.AddLiquidity(caller, req.Asset, req.Amount)
	}
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// initAccumulator creates the accumulator of the first batch
// POST /admin/batch/accumulator
func (a *API) initAccumulator(w http.ResponseWriter, r *http.Request) {
	req := &AdminRequest{}
	caller, ok := a.decodeSigned(w, r, ActionInitAccumulator, req)
	if !ok {
		return
	}
	if err := a.seq.InitBatchAccumulator(caller); err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// initBatch queues the seeding of the current batch
// POST /admin/batch/init
func (a *API) initBatch(w http.ResponseWriter, r *http.Request) {
	req := &AdminRequest{}
	caller, ok := a.decodeSigned(w, r, ActionInitBatch, req)
	if !ok {
		return
	}
	id, err := a.seq.InitBatchState(caller)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// executeBatch queues the reveal of a ready batch
// POST /admin/batch/execute
func (a *API) executeBatch(w http.ResponseWriter, r *http.Request) {
	req := &BatchRequest{}
	caller, ok := a.decodeSigned(w, r, ActionExecuteBatch, req)
	if !ok {
		return
	}
	id, err := a.seq.ExecuteBatch(caller, req.BatchID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &ComputationResponse{ID: id})
}

// executeSwaps rebalances the vaults of an executed batch against the
// reserves
// POST /admin/batch/swaps
func (a *API) executeSwaps(w http.ResponseWriter, r *http.Request) {
	req := &BatchRequest{}
	caller, ok := a.decodeSigned(w, r, ActionExecuteSwaps, req)
	if !ok {
		return
	}
	if err := a.seq.ExecuteSwaps(caller, req.BatchID); err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// clearPending releases the in-flight slot of a user
// POST /admin/pending/clear
func (a *API) clearPending(w http.ResponseWriter, r *http.Request) {
	req := &ClearPendingRequest{}
	caller, ok := a.decodeSigned(w, r, ActionClearPending, req)
	if !ok {
		return
	}
	if err := a.seq.ClearPending(caller, req.User); err != nil {
		errorFor(err).Write(w)
		return
	}
	log.Warnw("pending slot cleared", "user", req.User.Hex(), "by", caller.Hex())
	httpWriteOK(w)
}
