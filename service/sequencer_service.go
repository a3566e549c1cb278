package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/storage"
)

// SequencerService runs the computation workers of a sequencer.
type SequencerService struct {
	sequencer *sequencer.Sequencer
	mu        sync.Mutex
	cancel    context.CancelFunc
}

// NewSequencer creates the sequencer over stg, posting computations to
// cluster and netting batches at the prices of feed.
func NewSequencer(stg *storage.Storage, cluster sequencer.Cluster, feed oracle.Feed,
	opts sequencer.Options,
) (*SequencerService, error) {
	s, err := sequencer.New(stg, cluster, feed, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequencer: %w", err)
	}
	return &SequencerService{
		sequencer: s,
	}, nil
}

// Sequencer returns the underlying sequencer.
func (ss *SequencerService) Sequencer() *sequencer.Sequencer {
	return ss.sequencer
}

// Start launches the workers. It returns an error if the service is already
// running.
func (ss *SequencerService) Start(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.cancel != nil {
		return fmt.Errorf("sequencer service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := ss.sequencer.Start(ctx); err != nil {
		cancel()
		return err
	}
	ss.cancel = cancel
	return nil
}

// Stop halts the workers and waits for them to return.
func (ss *SequencerService) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.cancel == nil {
		return
	}
	if err := ss.sequencer.Stop(); err != nil {
		log.Warnw("sequencer service stopped", "error", err)
	}
	ss.cancel()
	ss.cancel = nil
}
