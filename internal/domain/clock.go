package domain

import "time"

// Clock supplies the current time in the fixed reference timezone. Every daily
// boundary and stats bucket is computed in that one zone so the cutoff is
// unambiguous regardless of caller timezone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}
