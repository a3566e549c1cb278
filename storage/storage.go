// storage package contains all the artifacts of the settlement engine stored
// in the database, and the queue of MPC computations waiting for the cluster.
// The storage package includes a prefixed key-value store that allows to
// store the different types of artifacts in the database. The following
// prefixes are used:
//   - 'u/' for user ledgers
//   - 'a/' for the batch accumulator
//   - 'l/' for batch logs
//   - 'p/' for the pool configuration
//   - 't/' for token custody balances
//   - 'q/' for queued computations (queued)
//   - 'qs/' for computation statuses
//   - 'e/' for the event log
//
// Every state transition writes through a Tx, so that all the artifacts it
// touches are committed together or not at all.
package storage

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/vocdoni/omnibatch/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	userPrefix             = []byte("u/")
	accumulatorPrefix      = []byte("a/")
	batchLogPrefix         = []byte("l/")
	poolPrefix             = []byte("p/")
	tokenPrefix            = []byte("t/")
	computationPrefix      = []byte("q/")
	computationReservation = []byte("qr/")
	computationStatus      = []byte("qs/")
	eventPrefix            = []byte("e/")

	// singletonKey is the key of the artifacts stored once (pool and
	// accumulator).
	singletonKey = []byte{0x00}
)

// Storage is the persistence layer of the engine.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex

	// sequence counters, initialised from the last stored key
	queueSeq atomic.Uint64
	eventSeq atomic.Uint64
}

// New creates a new Storage instance. Reservations left by a previous run
// are dropped so that their computations are picked up again.
func New(database db.Database) *Storage {
	s := &Storage{db: database}
	s.queueSeq.Store(s.lastSeq(computationPrefix))
	s.eventSeq.Store(s.lastSeq(eventPrefix))
	if n, err := s.clearPrefix(computationReservation); err != nil {
		log.Warnw("could not clear computation reservations", "error", err.Error())
	} else if n > 0 {
		log.Infow("released stale computation reservations", "count", n)
	}
	return s
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// DB returns the underlying database, used by components that keep their
// own prefixed trees in it.
func (s *Storage) DB() db.Database {
	return s.db
}

// lastSeq returns the highest sequence key stored under the prefix.
func (s *Storage) lastSeq(prefix []byte) uint64 {
	var last uint64
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	if err := rd.Iterate(nil, func(k, _ []byte) bool {
		if len(k) == 8 {
			if v := binary.BigEndian.Uint64(k); v > last {
				last = v
			}
		}
		return true
	}); err != nil {
		log.Warnw("could not read sequence", "prefix", string(prefix), "error", err.Error())
	}
	return last
}

// seqKey encodes a sequence number as a sortable key.
func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}
