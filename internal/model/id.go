package model

import "github.com/oklog/ulid/v2"

// NewID generates a ULID string for use as a run identifier. ULIDs sort
// lexically by creation time, which keeps run listings chronological.
func NewID() string {
	return ulid.Make().String()
}
