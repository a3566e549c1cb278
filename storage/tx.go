package storage

import (
	"fmt"
	"time"

	"github.com/vocdoni/omnibatch/events"
)

// Tx buffers the writes of one state transition. Reads through the Tx see its
// own pending writes. Nothing reaches the database until Commit.
type Tx struct {
	s      *Storage
	writes map[string][]byte
	order  []string
	events []events.Event
	done   bool
}

// NewTx starts a transition.
func (s *Storage) NewTx() *Tx {
	return &Tx{s: s, writes: make(map[string][]byte)}
}

func (t *Tx) get(prefix, key []byte, out any) error {
	if v, ok := t.writes[prefixed(prefix, key)]; ok {
		if v == nil {
			return ErrNotFound
		}
		return decodeArtifact(v, out)
	}
	return t.s.getArtifact(prefix, key, out)
}

func (t *Tx) set(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	t.put(prefixed(prefix, key), data)
	return nil
}

func (t *Tx) delete(prefix, key []byte) {
	t.put(prefixed(prefix, key), nil)
}

func (t *Tx) put(k string, v []byte) {
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = v
}

// Emit appends an event to the event log. Sequence numbers are assigned on
// commit.
func (t *Tx) Emit(ev events.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	t.events = append(t.events, ev)
}

// Events returns the events of the transition. After a successful commit
// they carry their sequence numbers.
func (t *Tx) Events() []events.Event {
	return t.events
}

// Commit writes the transition to the database atomically.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true

	t.s.globalLock.Lock()
	defer t.s.globalLock.Unlock()

	wTx := t.s.db.WriteTx()
	for _, k := range t.order {
		var err error
		if v := t.writes[k]; v == nil {
			err = wTx.Delete([]byte(k))
		} else {
			err = wTx.Set([]byte(k), v)
		}
		if err != nil {
			wTx.Discard()
			return err
		}
	}
	seq := t.s.eventSeq.Load()
	for i := range t.events {
		seq++
		t.events[i].Seq = seq
		data, err := encodeArtifact(&t.events[i])
		if err != nil {
			wTx.Discard()
			return fmt.Errorf("encode event: %w", err)
		}
		if err := wTx.Set([]byte(prefixed(eventPrefix, seqKey(seq))), data); err != nil {
			wTx.Discard()
			return err
		}
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	t.s.eventSeq.Store(seq)
	return nil
}

// Discard drops the transition. It is a no-op after Commit.
func (t *Tx) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.writes = nil
	t.order = nil
	t.events = nil
}
