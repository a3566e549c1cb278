package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/metrics"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// errStaleComputation is returned by a callback whose computation no longer
// owns the pending slot it was queued for.
var errStaleComputation = errors.New("computation no longer owns the pending slot")

// callback carries the output of a computation into its callback phase.
type callback struct {
	tx  *storage.Tx
	qc  *storage.QueuedComputation
	key []byte
	out *mpc.Output
	// requeued is set when the callback put the computation back in the
	// queue instead of consuming it.
	requeued bool
	// afterCommit runs once the transition is written.
	afterCommit []func()
}

// computationWorker returns a goroutine that continuously takes computations
// from the queue, runs them on the cluster and applies their callbacks. It
// runs until the sequencer context is canceled.
func (s *Sequencer) computationWorker(id int) func() error {
	return func() error {
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		log.Infow("computation worker started", "worker", id)

		for {
			select {
			case <-s.ctx.Done():
				log.Infow("computation worker stopped", "worker", id)
				return nil
			default:
			}

			processed, err := s.ProcessNext(s.ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("failed to process computation", "worker", id, "error", err.Error())
			}
			if processed {
				continue
			}
			// If no computation is available, wait for the next tick or
			// context cancellation
			select {
			case <-ticker.C:
			case <-s.ctx.Done():
				log.Infow("computation worker stopped", "worker", id)
				return nil
			}
		}
	}
}

// ProcessNext runs the next queued computation, if any, and applies its
// callback. It reports whether a computation was taken from the queue.
func (s *Sequencer) ProcessNext(ctx context.Context) (bool, error) {
	qc, key, err := s.stg.NextComputation()
	if err != nil {
		if errors.Is(err, storage.ErrNoMoreElements) {
			return false, nil
		}
		return false, err
	}
	metrics.QueueLength.Set(float64(s.stg.CountComputations()))

	startTime := time.Now()
	out, err := s.cluster.Compute(ctx, qc.Computation)
	if err != nil {
		if ctx.Err() != nil {
			if rerr := s.stg.ReleaseComputation(key); rerr != nil {
				log.Warnw("failed to release computation", "error", rerr.Error())
			}
			return true, ctx.Err()
		}
		metrics.ComputationsAborted.WithLabelValues(string(qc.Computation.Circuit)).Inc()
		s.mu.Lock()
		defer s.mu.Unlock()
		return true, s.retryOrFail(qc, key, fmt.Errorf("%w: %v", ErrAbortedComputation, err))
	}
	log.Debugw("computation finished",
		"id", qc.Computation.ID.String(),
		"circuit", string(qc.Computation.Circuit),
		"duration", time.Since(startTime).String())
	return true, s.applyOutput(qc, key, out)
}

// Drain processes computations until the queue is empty. Computations are
// run one at a time.
func (s *Sequencer) Drain(ctx context.Context) error {
	for {
		processed, err := s.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
	}
}

// applyOutput verifies an output and runs the callback of its circuit.
func (s *Sequencer) applyOutput(qc *storage.QueuedComputation, key []byte, out *mpc.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := qc.Computation.ID
	tx := s.stg.NewTx()
	if !s.stillQueued(tx, qc) {
		tx.Discard()
		return nil
	}
	p, err := pool(tx)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := out.Verify(p.ClusterAddress); err != nil || out.ComputationID != id {
		tx.Discard()
		metrics.ComputationsAborted.WithLabelValues(string(qc.Computation.Circuit)).Inc()
		if err == nil {
			err = fmt.Errorf("output bound to computation %s", out.ComputationID)
		}
		return s.retryOrFail(qc, key, fmt.Errorf("%w: %v", ErrInvalidClusterSignature, err))
	}
	handler, ok := s.callbacks[qc.Computation.Circuit]
	if !ok {
		tx.Discard()
		return fmt.Errorf("%w: %s", mpc.ErrUnknownCircuit, qc.Computation.Circuit)
	}

	cb := &callback{tx: tx, qc: qc, key: key, out: out}
	err = handler(cb)
	var ce *committedError
	if err != nil && !errors.As(err, &ce) {
		// runtime failure: nothing of the callback is kept
		tx.Discard()
		return s.retryOrFail(qc, key, err)
	}
	if !cb.requeued {
		st := &storage.ComputationStatus{
			ID:       id,
			Circuit:  qc.Computation.Circuit,
			Owner:    qc.Owner,
			State:    storage.ComputationDone,
			Attempts: qc.Attempts + 1,
			Revealed: out.Revealed,
		}
		result := "ok"
		if ce != nil {
			st.State = storage.ComputationFailed
			st.Error = ce.err.Error()
			result = "failed"
		}
		tx.RemoveComputation(key)
		if err := tx.SetComputationStatus(st); err != nil {
			tx.Discard()
			return err
		}
		metrics.ComputationsCompleted.WithLabelValues(string(qc.Computation.Circuit), result).Inc()
	}
	if err := s.commit(tx); err != nil {
		return err
	}
	for _, f := range cb.afterCommit {
		f()
	}
	if ce != nil {
		log.Infow("computation callback failed",
			"id", id.String(),
			"circuit", string(qc.Computation.Circuit),
			"owner", qc.Owner.Hex(),
			"error", ce.err.Error())
	}
	return nil
}

// retryOrFail puts an aborted computation back in the queue, or marks it
// failed once it ran out of attempts. Pending fields of the owner are left
// intact on failure; only the batch flags of protocol computations are reset
// so that the operator can queue them again. Must be called with s.mu held.
func (s *Sequencer) retryOrFail(qc *storage.QueuedComputation, key []byte, cause error) error {
	tx := s.stg.NewTx()
	if !s.stillQueued(tx, qc) {
		tx.Discard()
		return nil
	}
	qc.Attempts++
	st := &storage.ComputationStatus{
		ID:       qc.Computation.ID,
		Circuit:  qc.Computation.Circuit,
		Owner:    qc.Owner,
		State:    storage.ComputationQueued,
		Error:    cause.Error(),
		Attempts: qc.Attempts,
	}
	if qc.Attempts < s.opts.MaxAttempts {
		if err := tx.UpdateComputation(key, qc); err != nil {
			tx.Discard()
			return err
		}
		if err := tx.SetComputationStatus(st); err != nil {
			tx.Discard()
			return err
		}
		log.Warnw("computation will be retried",
			"id", qc.Computation.ID.String(),
			"circuit", string(qc.Computation.Circuit),
			"attempts", qc.Attempts,
			"error", cause.Error())
		return s.commit(tx)
	}

	tx.RemoveComputation(key)
	st.State = storage.ComputationFailed
	if err := tx.SetComputationStatus(st); err != nil {
		tx.Discard()
		return err
	}
	if err := releaseBatchFlags(tx, qc.Computation.Circuit); err != nil {
		tx.Discard()
		return err
	}
	tx.Emit(events.Event{
		Kind:        events.ComputationFailed,
		User:        qc.Owner,
		BatchID:     qc.BatchID,
		Computation: qc.Computation.ID,
		Circuit:     string(qc.Computation.Circuit),
		Reason:      cause.Error(),
	})
	metrics.ComputationsCompleted.WithLabelValues(string(qc.Computation.Circuit), "failed").Inc()
	log.Warnw("computation failed",
		"id", qc.Computation.ID.String(),
		"circuit", string(qc.Computation.Circuit),
		"attempts", qc.Attempts,
		"error", cause.Error())
	return s.commit(tx)
}

// releaseBatchFlags clears the accumulator flag held by a failed protocol
// computation.
func releaseBatchFlags(tx *storage.Tx, circuit mpc.CircuitID) error {
	if circuit != mpc.CircuitRevealBatch && circuit != mpc.CircuitInitBatchState {
		return nil
	}
	acc, err := accumulator(tx)
	if err != nil {
		return err
	}
	if circuit == mpc.CircuitRevealBatch {
		acc.Executing = false
	} else {
		acc.Seeding = false
	}
	return tx.SetAccumulator(acc)
}

// stillQueued reports whether the computation was not finished or cleared
// while it was running.
func (s *Sequencer) stillQueued(tx *storage.Tx, qc *storage.QueuedComputation) bool {
	st, err := tx.ComputationStatus(qc.Computation.ID)
	if err != nil || st.State != storage.ComputationQueued {
		log.Debugw("dropping output of a computation no longer queued",
			"id", qc.Computation.ID.String(),
			"circuit", string(qc.Computation.Circuit))
		return false
	}
	return true
}

// owner returns the ledger of the user the computation was queued for, or
// errStaleComputation if its pending slot moved on.
func (cb *callback) owner() (*types.UserLedger, error) {
	u, err := user(cb.tx, cb.qc.Owner)
	if err != nil {
		return nil, err
	}
	if u.Pending.Computation != cb.qc.Computation.ID {
		return nil, failAfterCommit(errStaleComputation)
	}
	return u, nil
}
