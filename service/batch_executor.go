package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/storage"
)

// eventBuffer is the bus buffer of the executor. Missed events are caught up
// by the periodic check.
const eventBuffer = 64

// BatchExecutor drives the batch lifecycle on behalf of the operator: it
// seeds the accumulator, executes ready batches, rebalances the vaults of
// executed batches and seeds the next one.
type BatchExecutor struct {
	seq      *sequencer.Sequencer
	operator common.Address
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// pendingSwaps holds executed batches whose rebalancing failed, retried
	// on every check.
	pendingSwaps map[uint64]struct{}
}

// NewBatchExecutor creates a BatchExecutor acting as operator and checking
// the accumulator every interval.
func NewBatchExecutor(seq *sequencer.Sequencer, operator common.Address, interval time.Duration) *BatchExecutor {
	return &BatchExecutor{
		seq:          seq,
		operator:     operator,
		interval:     interval,
		pendingSwaps: make(map[uint64]struct{}),
	}
}

// Start begins watching the batch. It returns an error if the service is
// already running.
func (be *BatchExecutor) Start(ctx context.Context) error {
	be.mu.Lock()
	defer be.mu.Unlock()

	if be.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if be.interval <= 0 {
		return fmt.Errorf("invalid check interval %s", be.interval)
	}
	ctx, cancel := context.WithCancel(ctx)
	be.cancel = cancel
	be.done = make(chan struct{})

	ch, unsubscribe := be.seq.Bus().Subscribe(eventBuffer)
	go func() {
		defer close(be.done)
		defer unsubscribe()
		be.run(ctx, ch)
	}()
	log.Infow("batch executor started", "operator", be.operator.Hex(), "interval", be.interval.String())
	return nil
}

// Stop halts the executor and waits for it to return.
func (be *BatchExecutor) Stop() {
	be.mu.Lock()
	defer be.mu.Unlock()

	if be.cancel == nil {
		return
	}
	be.cancel()
	<-be.done
	be.cancel = nil
}

func (be *BatchExecutor) run(ctx context.Context, ch <-chan events.Event) {
	ticker := time.NewTicker(be.interval)
	defer ticker.Stop()
	be.check()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.BatchExecuted:
				be.pendingSwaps[ev.BatchID] = struct{}{}
				be.check()
			case events.BatchReady, events.ComputationFailed, events.BatchExecutionFailed:
				be.check()
			}
		case <-ticker.C:
			be.check()
		}
	}
}

// check moves the batch one step forward if it can.
func (be *BatchExecutor) check() {
	be.executeSwaps()

	acc, err := be.seq.Storage().Accumulator()
	if errors.Is(err, storage.ErrNotFound) {
		if err := be.seq.InitBatchAccumulator(be.operator); err != nil {
			be.warn("failed to create accumulator", err)
			return
		}
		log.Infow("batch accumulator created")
		acc, err = be.seq.Storage().Accumulator()
	}
	if err != nil {
		be.warn("failed to read accumulator", err)
		return
	}

	switch {
	case !acc.Seeded && !acc.Seeding && !acc.Executing:
		id, err := be.seq.InitBatchState(be.operator)
		if err != nil {
			be.warn("failed to seed batch", err)
			return
		}
		log.Infow("batch seeding queued", "batchID", acc.BatchID, "computation", id.String())
	case acc.Ready && !acc.Executing && acc.InFlight == 0:
		id, err := be.seq.ExecuteBatch(be.operator, acc.BatchID)
		if err != nil {
			be.warn("failed to execute batch", err)
			return
		}
		log.Infow("batch execution requested", "batchID", acc.BatchID, "computation", id.String())
	}
}

// executeSwaps rebalances every executed batch still waiting for it.
func (be *BatchExecutor) executeSwaps() {
	for id := range be.pendingSwaps {
		err := be.seq.ExecuteSwaps(be.operator, id)
		switch {
		case err == nil:
			log.Infow("batch swaps executed", "batchID", id)
		case errors.Is(err, sequencer.ErrSwapsAlreadyExecuted):
		default:
			be.warn("failed to execute swaps", err, "batchID", id)
			continue
		}
		delete(be.pendingSwaps, id)
	}
}

// warn logs err unless it is a transient state error.
func (be *BatchExecutor) warn(msg string, err error, kv ...any) {
	if errors.Is(err, sequencer.ErrBatchBusy) || errors.Is(err, sequencer.ErrAlreadyInitialized) ||
		errors.Is(err, sequencer.ErrBatchNotReady) {
		log.Debugw(msg, append(kv, "error", err.Error())...)
		return
	}
	log.Warnw(msg, append(kv, "error", err.Error())...)
}
