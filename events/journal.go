package events

import (
	"errors"
	"sync"
)

var ErrUnitOpen = errors.New("events: unit of work already open")

// Journal sits between components and the downstream emitter. Outside a unit
// of work events pass straight through. Inside one they are buffered and only
// delivered on Commit, so an aborted unit leaves no trace on the public
// surface. Seq numbers are assigned on delivery and have no gaps.
type Journal struct {
	mu   sync.Mutex
	next Emitter
	open bool
	buf  []Event
	seq  uint64
}

var _ Emitter = (*Journal)(nil)

func NewJournal(next Emitter) *Journal {
	if next == nil {
		next = Discard{}
	}
	return &Journal{next: next}
}

func (j *Journal) Emit(ev Event) {
	j.mu.Lock()
	if j.open {
		j.buf = append(j.buf, ev)
		j.mu.Unlock()
		return
	}
	j.seq++
	ev.Seq = j.seq
	j.mu.Unlock()

	j.next.Emit(ev)
}

// Begin opens a unit of work.
func (j *Journal) Begin() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.open {
		return ErrUnitOpen
	}
	j.open = true
	j.buf = j.buf[:0]
	return nil
}

// Pending returns the number of buffered events.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buf)
}

// Commit closes the unit and delivers its events in emission order.
func (j *Journal) Commit() {
	j.mu.Lock()
	pending := make([]Event, len(j.buf))
	copy(pending, j.buf)
	for i := range pending {
		j.seq++
		pending[i].Seq = j.seq
	}
	j.buf = j.buf[:0]
	j.open = false
	j.mu.Unlock()

	for _, ev := range pending {
		j.next.Emit(ev)
	}
}

// Discard closes the unit and drops its events.
func (j *Journal) Discard() {
	j.mu.Lock()
	j.buf = j.buf[:0]
	j.open = false
	j.mu.Unlock()
}
