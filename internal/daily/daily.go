// Package daily maps instants to the calendar day the game is played on.
package daily

import (
	"time"
)

// KeyLayout is the YYYY-MM-DD layout used for date keys.
const KeyLayout = "2006-01-02"

// Clock reports "now" in the zone that decides when a new day starts.
type Clock struct {
	Loc *time.Location
	Now func() time.Time
}

// NewClock returns a Clock in loc backed by time.Now. A nil loc means time.Local.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{Loc: loc, Now: time.Now}
}

// Today returns the current instant in the clock's zone.
func (c Clock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Loc
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// Key returns today's YYYY-MM-DD key.
func (c Clock) Key() string {
	return DateKey(c.Today())
}

// DateKey returns YYYY-MM-DD of t in t's own location.
func DateKey(t time.Time) string {
	return t.Format(KeyLayout)
}

// ShareDate renders t as "January 2".
func ShareDate(t time.Time) string {
	return t.Format("January 2")
}

// DisplayDate renders a YYYY-MM-DD key as "January 2, 2006".
// Keys that do not parse are returned unchanged.
func DisplayDate(key string) string {
	t, err := time.Parse(KeyLayout, key)
	if err != nil {
		return key
	}
	return t.Format("January 2, 2006")
}
