package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribing to a namespace ("outbox.", "sync.") receives
// every kind that starts with it.
const (
	ConnectivityChanged = "connectivity.changed" // Payload: bool (online)

	OutboxEnqueued = "outbox.enqueued" // Payload: store.Mutation
	OutboxAcked    = "outbox.acked"    // Payload: int64 (seq)
	OutboxFailed   = "outbox.failed"   // Payload: store.Mutation

	MessageUpserted = "message.upserted" // Payload: store.Message

	SyncStateChanged = "sync.state_changed" // Payload: status.StateChange
	SyncStarted      = "sync.started"       // Payload: nil
	SyncCompleted    = "sync.completed"     // Payload: status.Result

	StatusChanged = "status.changed" // Payload: status.Snapshot

	RemoteChanged = "remote.changed" // Payload: nil
)
