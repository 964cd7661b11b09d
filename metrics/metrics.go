// Package metrics records settlement counters and latencies.
package metrics

import "time"

// Label keys understood by the recorders.
const (
	LabelChain = "chain"
	LabelCode  = "code"
)

// Counter and latency names.
const (
	MessagesReceived  = "messages_received"
	MessagesSettled   = "messages_settled"
	MessagesRejected  = "messages_rejected"
	SwapsExecuted     = "swaps_executed"
	ProcessingLatency = "process_message"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
