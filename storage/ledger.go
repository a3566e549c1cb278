package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/omnibatch/custody"
	"github.com/vocdoni/omnibatch/types"
)

// User returns the ledger of a user, or ErrNotFound.
func (t *Tx) User(owner common.Address) (*types.UserLedger, error) {
	u := &types.UserLedger{}
	if err := t.get(userPrefix, owner.Bytes(), u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetUser stores the ledger of a user.
func (t *Tx) SetUser(u *types.UserLedger) error {
	if u == nil {
		return fmt.Errorf("nil user ledger")
	}
	return t.set(userPrefix, u.Owner.Bytes(), u)
}

// Accumulator returns the batch accumulator, or ErrNotFound if it was not
// allocated yet.
func (t *Tx) Accumulator() (*types.BatchAccumulator, error) {
	acc := &types.BatchAccumulator{}
	if err := t.get(accumulatorPrefix, singletonKey, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// SetAccumulator stores the batch accumulator.
func (t *Tx) SetAccumulator(acc *types.BatchAccumulator) error {
	return t.set(accumulatorPrefix, singletonKey, acc)
}

// Pool returns the pool configuration, or ErrNotFound before initialization.
func (t *Tx) Pool() (*types.Pool, error) {
	p := &types.Pool{}
	if err := t.get(poolPrefix, singletonKey, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPool stores the pool configuration.
func (t *Tx) SetPool(p *types.Pool) error {
	return t.set(poolPrefix, singletonKey, p)
}

// BatchLog returns the log of an executed batch, or ErrNotFound.
func (t *Tx) BatchLog(batchID uint64) (*types.BatchLog, error) {
	l := &types.BatchLog{}
	if err := t.get(batchLogPrefix, seqKey(batchID), l); err != nil {
		return nil, err
	}
	return l, nil
}

// SetBatchLog stores the log of a batch.
func (t *Tx) SetBatchLog(l *types.BatchLog) error {
	return t.set(batchLogPrefix, seqKey(l.BatchID), l)
}

// TokenBalance implements custody.Ledger.
func (t *Tx) TokenBalance(a custody.Account) (uint64, error) {
	var v uint64
	if err := t.get(tokenPrefix, a.Key(), &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

// SetTokenBalance implements custody.Ledger.
func (t *Tx) SetTokenBalance(a custody.Account, v uint64) error {
	return t.set(tokenPrefix, a.Key(), v)
}

// Read-only accessors, for the API and the services.

// User returns the ledger of a user, or ErrNotFound.
func (s *Storage) User(owner common.Address) (*types.UserLedger, error) {
	u := &types.UserLedger{}
	if err := s.getArtifact(userPrefix, owner.Bytes(), u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns the addresses of every user.
func (s *Storage) ListUsers() ([]common.Address, error) {
	keys, err := s.listArtifacts(userPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		users = append(users, common.BytesToAddress(k))
	}
	return users, nil
}

// Accumulator returns the batch accumulator, or ErrNotFound.
func (s *Storage) Accumulator() (*types.BatchAccumulator, error) {
	acc := &types.BatchAccumulator{}
	if err := s.getArtifact(accumulatorPrefix, singletonKey, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Pool returns the pool configuration, or ErrNotFound.
func (s *Storage) Pool() (*types.Pool, error) {
	p := &types.Pool{}
	if err := s.getArtifact(poolPrefix, singletonKey, p); err != nil {
		return nil, err
	}
	return p, nil
}

// BatchLog returns the log of an executed batch, or ErrNotFound.
func (s *Storage) BatchLog(batchID uint64) (*types.BatchLog, error) {
	l := &types.BatchLog{}
	if err := s.getArtifact(batchLogPrefix, seqKey(batchID), l); err != nil {
		return nil, err
	}
	return l, nil
}

// ListBatchLogs returns the ids of the stored batch logs in ascending order.
func (s *Storage) ListBatchLogs() ([]uint64, error) {
	keys, err := s.listArtifacts(batchLogPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, binary.BigEndian.Uint64(k))
	}
	return ids, nil
}

// TokenBalance returns the balance of a token account.
func (s *Storage) TokenBalance(a custody.Account) (uint64, error) {
	var v uint64
	if err := s.getArtifact(tokenPrefix, a.Key(), &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}
