package domain

import "context"

// ThreadStore is an append-only, per-thread message log.
// Appends to one thread are serialized and keep insertion order;
// appends to different threads do not wait on each other.
type ThreadStore interface {
	// Append adds msg to the end of threadID's log, creating the thread if needed.
	Append(ctx context.Context, threadID string, msg Message) error
	// Thread returns a copy of the thread's messages in append order.
	// Unknown threads yield an empty slice.
	Thread(ctx context.Context, threadID string) ([]Message, error)
	// Threads lists known thread IDs.
	Threads(ctx context.Context) ([]string, error)
	// Stats reports thread and message counts.
	Stats(ctx context.Context) (ThreadStats, error)
	// Name identifies the backend.
	Name() string
}

// ThreadStats is a point-in-time size report of a ThreadStore.
type ThreadStats struct {
	Threads  int `json:"threads"`
	Messages int `json:"messages"`
}
