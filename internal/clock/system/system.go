// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements crawler.Clock. Times are UTC and truncated to microseconds
// so they survive a round trip through Postgres timestamptz unchanged.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
