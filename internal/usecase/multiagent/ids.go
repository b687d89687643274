package multiagent

import "github.com/oklog/ulid/v2"

// NewID returns a lexically sortable unique ID: a millisecond timestamp
// followed by 80 random bits. Safe for concurrent use.
func NewID() string {
	return ulid.Make().String()
}
