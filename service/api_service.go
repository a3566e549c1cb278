package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/omnibatch/api"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
)

// shutdownTimeout bounds the wait for in-flight requests on Stop.
const shutdownTimeout = 5 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	sequencer *sequencer.Sequencer
	feed      *oracle.Signed
	api       *api.API
	mu        sync.Mutex
	host      string
	port      int
}

// NewAPI creates a new APIService instance. The feed is optional; if set,
// signed price updates are accepted.
func NewAPI(seq *sequencer.Sequencer, feed *oracle.Signed, host string, port int) *APIService {
	return &APIService{
		sequencer: seq,
		feed:      feed,
		host:      host,
		port:      port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	a, err := api.New(&api.APIConfig{
		Host:      as.host,
		Port:      as.port,
		Sequencer: as.sequencer,
		PriceFeed: as.feed,
	})
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.api = a
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Shutdown(ctx); err != nil {
		log.Warnw("API server shutdown", "error", err)
	}
	as.api = nil
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
