package engine

import "github.com/google/uuid"

// RunIDGenerator names one engine run. The id tags the run's
// processing_log rows.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids, so
// processing_log rows of later runs sort after earlier ones.
type UUIDv7Generator struct{}

// Generate panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
