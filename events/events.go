// Package events defines the public observability surface: typed events,
// the emitters that deliver them, and the journal that holds back events of
// an in-flight unit of work until it commits.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitwit/xsettle/logger"
)

// Kind names an event type.
type Kind string

const (
	KindTrustedSenderSet        Kind = "TrustedSenderSet"
	KindSourceChainAllowanceSet Kind = "SourceChainAllowanceSet"
	KindSpenderAuthorizationSet Kind = "SpenderAuthorizationSet"
	KindDeposit                 Kind = "Deposit"
	KindWithdrawal              Kind = "Withdrawal"
	KindEmergencyWithdrawal     Kind = "EmergencyWithdrawal"
	KindTokenApproval           Kind = "TokenApproval"
	KindSwapperUpdated          Kind = "SwapperUpdated"
	KindGatewayUpdated          Kind = "GatewayUpdated"
	KindPaymentSettled          Kind = "PaymentSettled"
)

// Attrs carries the event payload.
type Attrs map[string]any

// Event is a single state-change notification.
type Event struct {
	ID    uuid.UUID `json:"id"`
	Seq   uint64    `json:"seq"`
	Kind  Kind      `json:"kind"`
	Time  time.Time `json:"time"`
	Attrs Attrs     `json:"attrs"`
}

// New stamps a fresh event. Seq is assigned on delivery.
func New(kind Kind, attrs Attrs) Event {
	return Event{
		ID:    uuid.New(),
		Kind:  kind,
		Time:  time.Now().UTC(),
		Attrs: attrs,
	}
}

// Emitter receives events.
type Emitter interface {
	Emit(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}

// Fanout delivers each event to all of its emitters in order.
type Fanout []Emitter

func (f Fanout) Emit(ev Event) {
	for _, e := range f {
		e.Emit(ev)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// LogSink writes events through a logger.
type LogSink struct {
	Log logger.Logger
}

func (s LogSink) Emit(ev Event) {
	fields := make(map[string]any, len(ev.Attrs)+3)
	for k, v := range ev.Attrs {
		fields[k] = v
	}
	fields["event_id"] = ev.ID.String()
	fields["event_seq"] = ev.Seq
	fields["event_kind"] = string(ev.Kind)
	s.Log.Info("event", fields)
}
