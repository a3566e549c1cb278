package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	lru "github.com/hashicorp/golang-lru"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/metrics"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/sequencer"
	"github.com/vocdoni/omnibatch/storage"
)

// seenSignatures is the number of request signatures remembered to reject
// replays.
const seenSignatures = 16384

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host      string
	Port      int
	Sequencer *sequencer.Sequencer
	// PriceFeed is optional. If set, signed price updates are accepted.
	PriceFeed *oracle.Signed
}

// API type represents the HTTP surface of the sequencer.
type API struct {
	router  *chi.Mux
	server  *http.Server
	seq     *sequencer.Sequencer
	storage *storage.Storage
	feed    *oracle.Signed
	seen    *lru.Cache
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Sequencer == nil {
		return nil, fmt.Errorf("missing sequencer instance")
	}
	seen, err := lru.New(seenSignatures)
	if err != nil {
		return nil, err
	}
	a := &API{
		seq:     conf.Sequencer,
		storage: conf.Sequencer.Storage(),
		feed:    conf.PriceFeed,
		seen:    seen,
	}

	// Initialize router
	a.initRouter()
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// is done.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	get := func(endpoint string, h http.HandlerFunc) {
		log.Debugw("register handler", "endpoint", endpoint, "method", "GET")
		a.router.Get(endpoint, h)
	}
	post := func(endpoint string, h http.HandlerFunc) {
		log.Debugw("register handler", "endpoint", endpoint, "method", "POST")
		a.router.Post(endpoint, h)
	}

	get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	get(InfoEndpoint, a.info)
	get(PricesEndpoint, a.prices)
	post(PricesEndpoint, a.submitPrices)
	a.router.Handle(MetricsEndpoint, metrics.Handler())

	// accounts
	post(UsersEndpoint, a.createUser)
	get(UserEndpoint, a.user)
	get(WalletEndpoint, a.wallet)
	post(FaucetEndpoint, a.faucet)
	post(DepositsEndpoint, a.deposit)
	post(WithdrawalsEndpoint, a.withdraw)
	post(TransfersEndpoint, a.transfer)
	get(ComputationEndpoint, a.computation)

	// orders and batches
	post(OrdersEndpoint, a.placeOrder)
	post(SettlementsEndpoint, a.settleOrder)
	get(BatchEndpoint, a.batch)
	get(BatchLogEndpoint, a.batchLog)
	get(BatchProofEndpoint, a.batchProof)
	get(ResultsRootEndpoint, a.resultsRoot)
	get(EventsEndpoint, a.events)
	get(CustodyEndpoint, a.custody)

	// admin
	post(PauseEndpoint, a.pause)
	post(LiquidityEndpoint, a.liquidity)
	post(InitAccumulatorEndpoint, a.initAccumulator)
	post(InitBatchEndpoint, a.initBatch)
	post(ExecuteBatchEndpoint, a.executeBatch)
	post(ExecuteSwapsEndpoint, a.executeSwaps)
	post(ClearPendingEndpoint, a.clearPending)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}

// decodeSigned decodes a signed request body into req and returns the
// signer. On failure the error is written to w and ok is false.
func (a *API) decodeSigned(w http.ResponseWriter, r *http.Request, action string, req Signed) (common.Address, bool) {
	if err := decodeJSON(r, req); err != nil {
		err.Write(w)
		return common.Address{}, false
	}
	addr, err := a.signer(action, req)
	if err != nil {
		var apiErr Error
		if !errors.As(err, &apiErr) {
			apiErr = ErrInvalidSignature.WithErr(err)
		}
		apiErr.Write(w)
		return common.Address{}, false
	}
	return addr, true
}
