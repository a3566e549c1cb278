package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/oracle"
	"github.com/vocdoni/omnibatch/storage"
	"github.com/vocdoni/omnibatch/types"
)

// info describes the pool, the cluster and the asset universe
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	p, err := a.storage.Pool()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrNotInitialized.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	opts := a.seq.Options()
	res := &InfoResponse{
		Pool:           p,
		ClusterAddress: a.seq.Cluster().Address(),
		ClusterPubKey:  a.seq.Cluster().PublicKey(),
		SlippageBps:    opts.SlippageBps,
		NettingMode:    a.seq.Engine().Mode().String(),
		FaucetCap:      opts.FaucetCap,
	}
	for i := types.AssetID(0); i < types.NumAssets; i++ {
		res.Assets = append(res.Assets, AssetInfo{ID: i, Name: i.String()})
	}
	for i := types.PairID(0); i < types.NumPairs; i++ {
		pair := i.Pair()
		res.Pairs = append(res.Pairs, PairInfo{ID: i, Name: i.String(), Base: pair.Base, Quote: pair.Quote})
	}
	httpWriteJSON(w, res)
}

// prices returns the price vector netting currently runs with
// GET /prices
func (a *API) prices(w http.ResponseWriter, r *http.Request) {
	prices, err := a.seq.Oracle().Prices(r.Context())
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	res := &PricesResponse{Prices: prices, Display: oracle.FormatVector(prices)}
	if a.feed != nil {
		res.UpdatedAt = a.feed.UpdatedAt()
	}
	httpWriteJSON(w, res)
}

// submitPrices installs a price vector signed by the oracle
// POST /prices
func (a *API) submitPrices(w http.ResponseWriter, r *http.Request) {
	if a.feed == nil {
		ErrPriceFeedReadOnly.Write(w)
		return
	}
	u := &oracle.PriceUpdate{}
	if err := decodeJSON(r, u); err != nil {
		err.Write(w)
		return
	}
	if err := a.feed.Submit(u); err != nil {
		ErrInvalidPriceUpdate.WithErr(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// events returns a page of the event log
// GET /events?after=<seq>&limit=<n>
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	var (
		after uint64
		limit = DefaultEventsLimit
		err   error
	)
	if s := r.URL.Query().Get("after"); s != "" {
		if after, err = strconv.ParseUint(s, 10, 64); err != nil {
			ErrMalformedParam.Withf("invalid after: %v", err).Write(w)
			return
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			ErrMalformedParam.Withf("invalid limit %q", s).Write(w)
			return
		}
		limit = min(limit, DefaultEventsLimit)
	}
	evs, err := a.storage.Events(after, limit)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &EventsResponse{Events: evs, Last: a.storage.LastEventSeq()})
}

// custody returns the vault and reserve token balances
// GET /custody
func (a *API) custody(w http.ResponseWriter, r *http.Request) {
	res := &CustodyResponse{}
	var err error
	for asset := types.AssetID(0); asset < types.NumAssets; asset++ {
		if res.Vaults[asset], err = a.storage.TokenBalance(custody.Vault(asset)); err != nil {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		if res.Reserves[asset], err = a.storage.TokenBalance(custody.Reserve(asset)); err != nil {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
	}
	httpWriteJSON(w, res)
}
