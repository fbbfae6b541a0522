package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDGenerator abstracts identifier generation so tests are deterministic.
type IDGenerator interface {
	// NewID returns a fresh share id with at least 122 bits of randomness.
	NewID() string
	// NewStorageRef returns a blob key unrelated to any share id.
	NewStorageRef(now time.Time) string
}

// UUIDGenerator produces random UUIDv4 ids and date-partitioned storage refs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

func (UUIDGenerator) NewStorageRef(now time.Time) string {
	d := now.UTC()
	return fmt.Sprintf("shares/%04d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}
