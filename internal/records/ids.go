// ABOUTME: ULID record identifiers
// ABOUTME: Millisecond time prefix plus random suffix, monotonic within one process

package records

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a fresh record id.
func NewID() string {
	return ulid.Make().String()
}

// IDTime returns the creation time embedded in an id produced by NewID.
func IDTime(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing id %q: %w", id, err)
	}
	return ulid.Time(u.Time()), nil
}
