package xmal

import (
	"time"
)

// EventType names what an endpoint just did.
type EventType string

const (
	SendStart    EventType = "send_start"
	SendDone     EventType = "send_done"
	ReceiveStart EventType = "receive_start"
	ReceiveDone  EventType = "receive_done"
	Discard      EventType = "discard"
	Notify       EventType = "notify"
	Error        EventType = "error"
)

// Event describes one message moving through an endpoint. Interaction and
// Stage are the MAL pattern and stage names; Peer is the other endpoint.
type Event struct {
	Type          EventType
	Endpoint      string
	Peer          string
	MessageID     string
	Interaction   string
	Stage         string
	TransactionID int64
	Duration      time.Duration
	Err           error

	// set by ObserverPool.Notify
	observers []Observer
}

// PoolStats is a snapshot of an ObserverPool.
type PoolStats struct {
	Dropped      uint64 // queue was full
	Processed    uint64
	ActiveEvents int // queued, summed over workers
	Workers      int
	BufferSize   int // total queue capacity
}

// Metrics counts endpoint traffic since it was built.
type Metrics struct {
	Sent                uint64
	Received            uint64
	Discarded           uint64
	Notified            uint64
	Errors              uint64
	OpenTransactions    int
	EventsDropped       uint64
	AvgProcessingTimeMs float64
}

// HealthStatus summarizes an endpoint for readiness checks.
type HealthStatus struct {
	Status    string // healthy, degraded or unhealthy
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
