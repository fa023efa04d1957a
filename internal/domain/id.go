package domain

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string. IDs from one process are strictly
// increasing, so they are unique and sort by creation time.
func NewID() string {
	return ulid.Make().String()
}
