// Package sequencer is the orchestrator of the settlement engine. Every
// user-visible operation is split in a queue phase, which validates the
// request, records the intent in the user ledger and posts a computation to
// the MPC cluster, and a callback phase, which consumes the signed output and
// finishes the transition. Both phases run as atomic storage transactions,
// serialized by the sequencer.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/metrics"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/netting"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/state"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
	"golang.org/x/sync/errgroup"
)

// Cluster is the MPC coprocessor the sequencer posts computations to.
type Cluster interface {
	PublicKey() types.PublicKey
	Address() common.Address
	Compute(ctx context.Context, comp *mpc.Computation) (*mpc.Output, error)
}

// Options tunes the sequencer.
type Options struct {
	// Workers is the number of goroutines feeding the cluster.
	Workers int
	// MaxAttempts is the number of times an aborted computation is run
	// before it is marked failed.
	MaxAttempts uint32
	// PollInterval is the wait between queue polls when the queue is empty.
	PollInterval time.Duration
	SlippageBps  uint16
	NettingMode  netting.Mode
	// FaucetCap is the cumulative amount a user may mint per asset.
	FaucetCap uint64
	// LogCacheSize is the number of batch logs kept in memory.
	LogCacheSize int
}

// DefaultOptions returns the options of the reference deployment.
func DefaultOptions() Options {
	return Options{
		Workers:      2,
		MaxAttempts:  3,
		PollInterval: 200 * time.Millisecond,
		SlippageBps:  types.DefaultSlippageBps,
		NettingMode:  netting.OutputInSoldUnits,
		FaucetCap:    types.FaucetMaxPerUser,
		LogCacheSize: 128,
	}
}

// Sequencer runs the state machine of the engine.
type Sequencer struct {
	stg     *storage.Storage
	cluster Cluster
	oracle  oracle.Feed
	engine  *netting.Engine
	results *state.Results
	bus     *events.Bus
	logs    *lru.Cache
	opts    Options

	// mu serializes transitions
	mu        sync.Mutex
	callbacks map[mpc.CircuitID]func(*callback) error

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a sequencer over the given storage, cluster and price feed.
// Batch commitments missing from the results tree are replayed from the
// stored batch logs.
func New(stg *storage.Storage, cluster Cluster, feed oracle.Feed, bus *events.Bus, opts Options) (*Sequencer, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if cluster == nil {
		return nil, fmt.Errorf("cluster cannot be nil")
	}
	if feed == nil {
		return nil, fmt.Errorf("price feed cannot be nil")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.LogCacheSize <= 0 {
		opts.LogCacheSize = DefaultOptions().LogCacheSize
	}
	engine, err := netting.New(opts.SlippageBps, opts.NettingMode)
	if err != nil {
		return nil, fmt.Errorf("netting engine: %w", err)
	}
	results, err := state.New(stg.DB())
	if err != nil {
		return nil, fmt.Errorf("results tree: %w", err)
	}
	logs, err := lru.New(opts.LogCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Sequencer{
		stg:     stg,
		cluster: cluster,
		oracle:  feed,
		engine:  engine,
		results: results,
		bus:     bus,
		logs:    logs,
		opts:    opts,
	}
	s.callbacks = map[mpc.CircuitID]func(*callback) error{
		mpc.CircuitAddBalance:      s.addBalanceCallback,
		mpc.CircuitSubBalance:      s.subBalanceCallback,
		mpc.CircuitTransfer:        s.transferCallback,
		mpc.CircuitInitBatchState:  s.initBatchStateCallback,
		mpc.CircuitAccumulateOrder: s.accumulateOrderCallback,
		mpc.CircuitRevealBatch:     s.revealBatchCallback,
		mpc.CircuitCalculatePayout: s.calculatePayoutCallback,
	}
	if err := s.replayCommitments(); err != nil {
		return nil, err
	}
	log.Debugw("sequencer initialized",
		"workers", opts.Workers,
		"maxAttempts", opts.MaxAttempts,
		"slippageBps", opts.SlippageBps,
		"nettingMode", opts.NettingMode.String())
	return s, nil
}

// Start launches the computation workers.
func (s *Sequencer) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group, _ = errgroup.WithContext(s.ctx)
	for i := 0; i < s.opts.Workers; i++ {
		s.group.Go(s.computationWorker(i))
	}
	log.Infow("sequencer started successfully", "workers", s.opts.Workers)
	return nil
}

// Stop cancels the workers and waits for them to return. It's safe to call
// Stop multiple times.
func (s *Sequencer) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := s.group.Wait()
	log.Infow("sequencer stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Storage returns the storage of the sequencer.
func (s *Sequencer) Storage() *storage.Storage { return s.stg }

// Bus returns the event bus.
func (s *Sequencer) Bus() *events.Bus { return s.bus }

// Results returns the batch commitment tree.
func (s *Sequencer) Results() *state.Results { return s.results }

// Cluster returns the MPC cluster.
func (s *Sequencer) Cluster() Cluster { return s.cluster }

// Oracle returns the price feed.
func (s *Sequencer) Oracle() oracle.Feed { return s.oracle }

// Engine returns the netting engine.
func (s *Sequencer) Engine() *netting.Engine { return s.engine }

// Options returns the options the sequencer runs with.
func (s *Sequencer) Options() Options { return s.opts }

// BatchLog returns the log of an executed batch, from the cache if possible.
func (s *Sequencer) BatchLog(batchID uint64) (*types.BatchLog, error) {
	if v, ok := s.logs.Get(batchID); ok {
		return v.(*types.BatchLog), nil
	}
	l, err := s.stg.BatchLog(batchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBatchLogNotFound
		}
		return nil, err
	}
	s.logs.Add(batchID, l)
	return l, nil
}

// transition runs fn inside a storage transaction and commits it. If fn
// fails the transaction is dropped, unless the error was raised with
// failAfterCommit.
func (s *Sequencer) transition(fn func(tx *storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.stg.NewTx()
	err := fn(tx)
	var ce *committedError
	switch {
	case err == nil:
		return s.commit(tx)
	case errors.As(err, &ce):
		if cerr := s.commit(tx); cerr != nil {
			return cerr
		}
		return ce.err
	default:
		tx.Discard()
		return err
	}
}

// commit writes the transaction and publishes its events.
func (s *Sequencer) commit(tx *storage.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	s.bus.Publish(tx.Events()...)
	return nil
}

// queue posts a computation for the cluster within the transaction.
func (s *Sequencer) queue(tx *storage.Tx, qc *storage.QueuedComputation) error {
	if _, err := tx.PushComputation(qc); err != nil {
		return fmt.Errorf("queue computation: %w", err)
	}
	metrics.ComputationsQueued.WithLabelValues(string(qc.Computation.Circuit)).Inc()
	log.Debugw("computation queued",
		"id", qc.Computation.ID.String(),
		"circuit", string(qc.Computation.Circuit),
		"owner", qc.Owner.Hex())
	return nil
}

// pool returns the pool configuration or ErrNotInitialized.
func pool(tx *storage.Tx) (*types.Pool, error) {
	p, err := tx.Pool()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return p, nil
}

// activePool returns the pool configuration if user operations are allowed.
func activePool(tx *storage.Tx) (*types.Pool, error) {
	p, err := pool(tx)
	if err != nil {
		return nil, err
	}
	if p.Paused {
		return nil, ErrProtocolPaused
	}
	return p, nil
}

// user returns the ledger of a user or ErrUserNotFound.
func user(tx *storage.Tx, addr common.Address) (*types.UserLedger, error) {
	u, err := tx.User(addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// accumulator returns the batch accumulator or ErrBatchNotInitialized.
func accumulator(tx *storage.Tx) (*types.BatchAccumulator, error) {
	acc, err := tx.Accumulator()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBatchNotInitialized
		}
		return nil, err
	}
	return acc, nil
}

// batchLog returns a batch log within the transaction or
// ErrBatchLogNotFound.
func batchLog(tx *storage.Tx, batchID uint64) (*types.BatchLog, error) {
	l, err := tx.BatchLog(batchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBatchLogNotFound
		}
		return nil, err
	}
	return l, nil
}

// replayCommitments adds to the results tree the batch logs whose commitment
// did not make it after their transition was committed.
func (s *Sequencer) replayCommitments() error {
	ids, err := s.stg.ListBatchLogs()
	if err != nil {
		return fmt.Errorf("list batch logs: %w", err)
	}
	for _, id := range ids {
		if s.results.Has(id) {
			continue
		}
		l, err := s.stg.BatchLog(id)
		if err != nil {
			return fmt.Errorf("load batch log %d: %w", id, err)
		}
		if err := s.results.Add(id, new(big.Int).SetBytes(l.Commitment)); err != nil {
			return fmt.Errorf("commit batch %d: %w", id, err)
		}
		log.Infow("batch commitment replayed", "batchID", id)
	}
	return nil
}
