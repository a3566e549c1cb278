package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/mpc"
	"github.com/vocdoni/omnibatch/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// ComputationState is the lifecycle state of a computation.
type ComputationState string

const (
	ComputationQueued ComputationState = "queued"
	ComputationDone   ComputationState = "done"
	ComputationFailed ComputationState = "failed"
)

// QueuedComputation is a computation waiting for the cluster, together with
// what its callback needs to bind the output back to the ledger.
type QueuedComputation struct {
	Computation *mpc.Computation `cbor:"0,keyasint,omitempty"`
	// Owner is the user whose pending slot waits for the computation, zero
	// for protocol computations.
	Owner common.Address `cbor:"1,keyasint,omitempty"`
	// BaseNonce is the accumulator nonce the batch argument was read at.
	BaseNonce types.Nonce `cbor:"2,keyasint,omitempty"`
	BatchID   uint64      `cbor:"3,keyasint,omitempty"`
	Attempts  uint32      `cbor:"4,keyasint,omitempty"`
	Rebases   uint32      `cbor:"5,keyasint,omitempty"`
	QueuedAt  time.Time   `cbor:"6,keyasint,omitempty"`
}

// ComputationStatus is the outcome of a computation as seen by clients.
type ComputationStatus struct {
	ID        uuid.UUID        `json:"id"                  cbor:"0,keyasint,omitempty"`
	Circuit   mpc.CircuitID    `json:"circuit"             cbor:"1,keyasint,omitempty"`
	Owner     common.Address   `json:"owner"               cbor:"2,keyasint,omitempty"`
	State     ComputationState `json:"state"               cbor:"3,keyasint,omitempty"`
	Error     string           `json:"error,omitempty"     cbor:"4,keyasint,omitempty"`
	Attempts  uint32           `json:"attempts"            cbor:"5,keyasint,omitempty"`
	Revealed  []uint64         `json:"revealed,omitempty"  cbor:"6,keyasint,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"           cbor:"7,keyasint,omitempty"`
}

// PushComputation queues a computation and records its status. It returns
// the queue key.
func (t *Tx) PushComputation(qc *QueuedComputation) ([]byte, error) {
	if qc == nil || qc.Computation == nil {
		return nil, fmt.Errorf("nil computation")
	}
	if qc.QueuedAt.IsZero() {
		qc.QueuedAt = time.Now().UTC()
	}
	key := seqKey(t.s.queueSeq.Add(1))
	if err := t.set(computationPrefix, key, qc); err != nil {
		return nil, err
	}
	return key, t.SetComputationStatus(&ComputationStatus{
		ID:      qc.Computation.ID,
		Circuit: qc.Computation.Circuit,
		Owner:   qc.Owner,
		State:   ComputationQueued,
	})
}

// UpdateComputation rewrites a queued computation in place and releases its
// reservation so that it is handed out again.
func (t *Tx) UpdateComputation(key []byte, qc *QueuedComputation) error {
	if err := t.set(computationPrefix, key, qc); err != nil {
		return err
	}
	t.delete(computationReservation, key)
	return nil
}

// RemoveComputation drops a computation from the queue with its
// reservation.
func (t *Tx) RemoveComputation(key []byte) {
	t.delete(computationPrefix, key)
	t.delete(computationReservation, key)
}

// ComputationKey looks up the queue key of a computation by id.
func (t *Tx) ComputationKey(id uuid.UUID) ([]byte, *QueuedComputation, error) {
	var (
		key   []byte
		found *QueuedComputation
	)
	rd := prefixeddb.NewPrefixedReader(t.s.db, computationPrefix)
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		var qc QueuedComputation
		if err := decodeArtifact(v, &qc); err != nil {
			return true
		}
		if qc.Computation != nil && qc.Computation.ID == id {
			key = append([]byte(nil), k...)
			found = &qc
			return false
		}
		return true
	}); err != nil {
		return nil, nil, err
	}
	if found == nil {
		return nil, nil, ErrNotFound
	}
	return key, found, nil
}

// SetComputationStatus records the status of a computation.
func (t *Tx) SetComputationStatus(st *ComputationStatus) error {
	st.UpdatedAt = time.Now().UTC()
	return t.set(computationStatus, st.ID[:], st)
}

// ComputationStatus returns the status of a computation within the
// transition.
func (t *Tx) ComputationStatus(id uuid.UUID) (*ComputationStatus, error) {
	st := &ComputationStatus{}
	if err := t.get(computationStatus, id[:], st); err != nil {
		return nil, err
	}
	return st, nil
}

// NextComputation returns the next non-reserved computation, creates a
// reservation, and returns it together with its queue key. If the queue is
// empty it returns ErrNoMoreElements.
func (s *Storage) NextComputation() (*QueuedComputation, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pr := prefixeddb.NewPrefixedReader(s.db, computationPrefix)
	var chosenKey, chosenVal []byte
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(computationReservation, k) {
			return true
		}
		chosenKey = append([]byte(nil), k...)
		chosenVal = append([]byte(nil), v...)
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate computations: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}

	var qc QueuedComputation
	if err := decodeArtifact(chosenVal, &qc); err != nil {
		return nil, nil, fmt.Errorf("decode computation: %w", err)
	}
	if err := s.setReservation(computationReservation, chosenKey); err != nil {
		return nil, nil, ErrNoMoreElements
	}
	return &qc, chosenKey, nil
}

// ReleaseComputation drops the reservation of a computation so that it is
// handed out again.
func (s *Storage) ReleaseComputation(key []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.deleteArtifact(computationReservation, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// CountComputations returns the number of queued computations.
func (s *Storage) CountComputations() int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	count := 0
	rd := prefixeddb.NewPrefixedReader(s.db, computationPrefix)
	if err := rd.Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		log.Warnw("failed to count computations", "error", err.Error())
	}
	return count
}

// ComputationStatus returns the status of a computation, or ErrNotFound.
func (s *Storage) ComputationStatus(id uuid.UUID) (*ComputationStatus, error) {
	st := &ComputationStatus{}
	if err := s.getArtifact(computationStatus, id[:], st); err != nil {
		return nil, err
	}
	return st, nil
}
