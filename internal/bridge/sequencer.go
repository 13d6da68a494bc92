package bridge

import (
	"sync/atomic"

	"github.com/roach88/nbridge/internal/wire"
)

// Sequencer hands out correlation ids.
//
// Ids start at 1 and strictly increase. An id is never handed out twice,
// so a callback for a timed-out or forgotten call can never be mistaken
// for a later call's answer.
//
// Thread-safety: Sequencer is safe for concurrent use.
type Sequencer struct {
	seq atomic.Int64
}

// NewSequencer creates a sequencer whose first id is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// NewSequencerAt creates a sequencer whose first id is start+1.
func NewSequencerAt(start int64) *Sequencer {
	s := &Sequencer{}
	s.seq.Store(start)
	return s
}

// Next returns a fresh correlation id.
func (s *Sequencer) Next() wire.CorrelationID {
	return wire.CorrelationID(s.seq.Add(1))
}

// Current returns the last id handed out, or the start value.
func (s *Sequencer) Current() wire.CorrelationID {
	return wire.CorrelationID(s.seq.Load())
}
