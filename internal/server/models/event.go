package models

import "time"

// RemovalReason tells why a record left the metadata store.
type RemovalReason string

const (
	RemovalExpired RemovalReason = "expired"
	RemovalDeleted RemovalReason = "deleted"
)

// RemovalEvent is one entry of the change feed consumed by the cleanup
// worker. Seq increases monotonically, so events for the same record are
// delivered in removal order.
type RemovalEvent struct {
	Seq        int64
	ShareID    string
	StorageRef string
	Reason     RemovalReason
	// Attempts counts deliveries, including the current one.
	Attempts  int
	CreatedAt time.Time
}
