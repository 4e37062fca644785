package services

import (
	"time"

	"ticketbooth/internal/domain"
)

type referenceClock struct {
	loc *time.Location
}

// NewReferenceClock returns a domain.Clock that reports the current time in
// the given reference timezone.
func NewReferenceClock(loc *time.Location) domain.Clock {
	return &referenceClock{loc: loc}
}

func (c *referenceClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *referenceClock) Location() *time.Location {
	return c.loc
}
