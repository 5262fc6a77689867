package store

import "time"

// Task is a persisted prompt awaiting dispatch.
type Task struct {
	ID        int64
	Position  int64
	Text      string
	CreatedAt time.Time
}

// Lease is the single coordination record shared by drover instances.
type Lease struct {
	OwnerID       string
	LastHeartbeat time.Time
}
