package storage

import (
	"encoding/binary"

	"github.com/vocdoni/omnibatch/events"
	"github.com/vocdoni/omnibatch/log"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Events returns up to limit events with a sequence number greater than
// after, in order. A zero limit returns every remaining event.
func (s *Storage) Events(after uint64, limit int) ([]events.Event, error) {
	var res []events.Event
	rd := prefixeddb.NewPrefixedReader(s.db, eventPrefix)
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		if len(k) != 8 || binary.BigEndian.Uint64(k) <= after {
			return true
		}
		var ev events.Event
		if err := decodeArtifact(v, &ev); err != nil {
			log.Warnw("failed to decode event", "seq", binary.BigEndian.Uint64(k), "error", err.Error())
			return true
		}
		res = append(res, ev)
		return limit <= 0 || len(res) < limit
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// LastEventSeq returns the sequence number of the last committed event.
func (s *Storage) LastEventSeq() uint64 {
	return s.eventSeq.Load()
}
