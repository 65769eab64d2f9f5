package scheduler

import "time"

// Deadline is an optional absolute point in time bounding a repeated run.
// The zero value is Unbounded.
type Deadline struct {
	at  time.Time
	set bool
}

// Unbounded never expires
var Unbounded = Deadline{}

// At returns a deadline at the given instant
func At(t time.Time) Deadline {
	return Deadline{at: t, set: true}
}

// DeadlineIn returns a deadline d from the clock's current time
func DeadlineIn(clock Clock, d time.Duration) Deadline {
	return At(clock.Now().Add(d))
}

// DeadlineFor returns a deadline the given number of minutes from now,
// or Unbounded when minutes is not positive.
func DeadlineFor(clock Clock, minutes int) Deadline {
	if minutes <= 0 {
		return Unbounded
	}
	return DeadlineIn(clock, time.Duration(minutes)*time.Minute)
}

// IsBounded returns true if the deadline has an expiry time
func (d Deadline) IsBounded() bool {
	return d.set
}

// Time returns the expiry time and whether one is set
func (d Deadline) Time() (time.Time, bool) {
	return d.at, d.set
}

// Allows reports whether t is strictly before the deadline
func (d Deadline) Allows(t time.Time) bool {
	return !d.set || t.Before(d.at)
}

func (d Deadline) String() string {
	if !d.set {
		return "unbounded"
	}
	return d.at.Format(time.RFC3339)
}
