package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/metrics"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/netting"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/state"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// priceTimeout bounds the price feed query of a reveal callback.
const priceTimeout = 10 * time.Second

// ExecuteBatch queues the reveal of the current batch. The batch must be
// ready, with every accumulation called back.
func (s *Sequencer) ExecuteBatch(caller common.Address, batchID uint64) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if !p.IsOperator(caller) {
			return ErrUnauthorized
		}
		acc, err := accumulator(tx)
		if err != nil {
			return err
		}
		if acc.BatchID != batchID {
			return fmt.Errorf("%w: current batch is %d", ErrBatchIDMismatch, acc.BatchID)
		}
		if !acc.Seeded {
			return ErrBatchNotInitialized
		}
		if acc.Executing || acc.InFlight > 0 {
			return ErrBatchBusy
		}
		if !acc.Ready {
			return ErrBatchNotReady
		}
		pairStates := acc.Ciphertexts()
		comp := mpc.NewComputation(mpc.CircuitRevealBatch, mpc.Protocol(acc.MXENonce, pairStates[:]...))
		acc.Executing = true
		if err := tx.SetAccumulator(acc); err != nil {
			return err
		}
		id = comp.ID
		log.Infow("batch execution queued", "batchID", batchID, "orders", acc.OrderCount)
		return s.queue(tx, &storage.QueuedComputation{Computation: comp, BatchID: batchID})
	})
	return id, err
}

func (s *Sequencer) revealBatchCallback(cb *callback) error {
	acc, err := accumulator(cb.tx)
	if err != nil {
		return err
	}
	if acc.BatchID != cb.qc.BatchID {
		return failAfterCommit(fmt.Errorf("%w: reveal of batch %d, current is %d",
			ErrBatchIDMismatch, cb.qc.BatchID, acc.BatchID))
	}
	if len(cb.out.Revealed) != types.BatchTotals {
		return fmt.Errorf("%w: expected %d revealed totals, got %d",
			mpc.ErrInvalidArguments, types.BatchTotals, len(cb.out.Revealed))
	}
	var totals [types.BatchTotals]uint64
	copy(totals[:], cb.out.Revealed)

	p, err := pool(cb.tx)
	if err != nil {
		return err
	}
	active := 0
	for i := 0; i < types.NumPairs; i++ {
		if totals[2*i] > 0 || totals[2*i+1] > 0 {
			active++
		}
	}
	if acc.OrderCount < p.ExecutionTriggerCount || active < types.MinActivePairs {
		acc.Executing = false
		acc.Ready = false
		reason := fmt.Sprintf("batch holds %d orders over %d active pairs", acc.OrderCount, active)
		cb.tx.Emit(events.Event{
			Kind:       events.BatchExecutionFailed,
			BatchID:    acc.BatchID,
			OrderCount: acc.OrderCount,
			Reason:     reason,
		})
		cb.afterCommit = append(cb.afterCommit, metrics.BatchesFailed.Inc)
		log.Warnw("batch execution rejected", "batchID", acc.BatchID, "reason", reason)
		return cb.tx.SetAccumulator(acc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), priceTimeout)
	defer cancel()
	prices, err := s.oracle.Prices(ctx)
	if err != nil {
		return fmt.Errorf("query prices: %w", err)
	}
	bl := &types.BatchLog{
		BatchID:     acc.BatchID,
		ExecutedAt:  time.Now().UTC().Truncate(time.Second),
		Results:     s.engine.Net(totals, prices),
		Prices:      prices,
		SlippageBps: s.engine.SlippageBps(),
		OrderCount:  acc.OrderCount,
	}
	leaf, err := state.Leaf(bl)
	if err != nil {
		return fmt.Errorf("batch commitment: %w", err)
	}
	bl.Commitment = leaf.Bytes()
	if err := cb.tx.SetBatchLog(bl); err != nil {
		return err
	}
	acc.ResetAfterExecution()
	if err := cb.tx.SetAccumulator(acc); err != nil {
		return err
	}
	p.TotalBatchesExecuted++
	if err := cb.tx.SetPool(p); err != nil {
		return err
	}
	cb.tx.Emit(events.Event{
		Kind:       events.BatchExecuted,
		BatchID:    bl.BatchID,
		OrderCount: bl.OrderCount,
		Commitment: bl.Commitment,
	})
	cb.afterCommit = append(cb.afterCommit, func() {
		if err := s.results.Add(bl.BatchID, leaf); err != nil {
			log.Errorw(err, "failed to commit batch to the results tree")
		}
		s.logs.Add(bl.BatchID, bl)
		metrics.BatchesExecuted.Inc()
		metrics.AccumulatorOrders.Set(0)
	})
	log.Infow("batch executed",
		"batchID", bl.BatchID,
		"orders", bl.OrderCount,
		"activePairs", bl.ActivePairs(),
		"prices", oracle.FormatVector(prices))
	return nil
}

// ExecuteSwaps rebalances vaults and reserves for the net flows of an
// executed batch. It runs once per batch.
func (s *Sequencer) ExecuteSwaps(caller common.Address, batchID uint64) error {
	return s.transition(func(tx *storage.Tx) error {
		p, err := pool(tx)
		if err != nil {
			return err
		}
		if !p.IsOperator(caller) {
			return ErrUnauthorized
		}
		bl, err := batchLog(tx, batchID)
		if err != nil {
			return err
		}
		if bl.SwapsExecuted {
			return ErrSwapsAlreadyExecuted
		}
		flows := netting.Flows(bl.Results)
		for a := types.AssetID(0); a < types.NumAssets; a++ {
			amount, dir, err := netting.NetFlow(flows, a)
			if err != nil {
				return err
			}
			if amount == 0 {
				continue
			}
			from, to := custody.Vault(a), custody.Reserve(a)
			if dir == netting.ReserveToVault {
				from, to = to, from
			}
			if err := custody.Transfer(tx, from, to, amount); err != nil {
				return fmt.Errorf("rebalance %s: %w", a, err)
			}
			log.Debugw("swap executed", "batchID", batchID, "asset", a.String(),
				"from", from.String(), "to", to.String(), "amount", amount)
		}
		bl.SwapsExecuted = true
		if err := tx.SetBatchLog(bl); err != nil {
			return err
		}
		tx.Emit(events.Event{Kind: events.SwapsExecuted, BatchID: batchID})
		s.logs.Remove(batchID)
		metrics.SwapsExecuted.Inc()
		return nil
	})
}
