// Package events defines the events emitted by the settlement engine and an
// in-process bus to deliver them to local consumers such as the batch
// executor.
package events

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/omnibatch/log"
	"github.com/vocdoni/omnibatch/types"
)

// Kind names an event.
type Kind string

const (
	Deposit              Kind = "deposit"
	Withdraw             Kind = "withdraw"
	Transfer             Kind = "transfer"
	OrderPlaced          Kind = "order_placed"
	BatchReady           Kind = "batch_ready"
	BatchExecuted        Kind = "batch_executed"
	BatchExecutionFailed Kind = "batch_execution_failed"
	SwapsExecuted        Kind = "swaps_executed"
	Settlement           Kind = "settlement"
	ComputationFailed    Kind = "computation_failed"
	Liquidity            Kind = "liquidity"
	Faucet               Kind = "faucet"
	PendingCleared       Kind = "pending_cleared"
)

// Event is a flat record; each kind fills the fields it needs.
type Event struct {
	Seq  uint64    `json:"seq"  cbor:"0,keyasint,omitempty"`
	Kind Kind      `json:"kind" cbor:"1,keyasint,omitempty"`
	Time time.Time `json:"time" cbor:"2,keyasint,omitempty"`

	User      common.Address `json:"user,omitempty"      cbor:"3,keyasint,omitempty"`
	Recipient common.Address `json:"recipient,omitempty" cbor:"4,keyasint,omitempty"`
	Asset     types.AssetID  `json:"asset,omitempty"     cbor:"5,keyasint,omitempty"`
	Amount    uint64         `json:"amount,omitempty"    cbor:"6,keyasint,omitempty"`
	// Removed marks liquidity taken out of a reserve.
	Removed bool `json:"removed,omitempty" cbor:"7,keyasint,omitempty"`

	BatchID    uint64         `json:"batchId,omitempty"    cbor:"8,keyasint,omitempty"`
	OrderCount uint8          `json:"orderCount,omitempty" cbor:"9,keyasint,omitempty"`
	Commitment types.HexBytes `json:"commitment,omitempty" cbor:"10,keyasint,omitempty"`
	Root       types.HexBytes `json:"root,omitempty"       cbor:"11,keyasint,omitempty"`

	EncryptedPayout types.Ciphertext `json:"encryptedPayout,omitempty" cbor:"12,keyasint,omitempty"`
	Nonce           types.Nonce      `json:"nonce,omitempty"           cbor:"13,keyasint,omitempty"`
	Payout          uint64           `json:"payout,omitempty"          cbor:"14,keyasint,omitempty"`

	Computation uuid.UUID `json:"computation,omitempty" cbor:"15,keyasint,omitempty"`
	Circuit     string    `json:"circuit,omitempty"     cbor:"16,keyasint,omitempty"`
	Reason      string    `json:"reason,omitempty"      cbor:"17,keyasint,omitempty"`
}

// Bus fans events out to subscribers. Delivery never blocks the publisher:
// a subscriber whose buffer is full misses the event and can catch up from
// the persisted event log.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers the events to every subscriber.
func (b *Bus) Publish(evs ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ev := range evs {
		for id, ch := range b.subs {
			select {
			case ch <- ev:
			default:
				log.Warnw("event dropped, subscriber busy", "subscriber", id, "kind", string(ev.Kind), "seq", ev.Seq)
			}
		}
	}
}
