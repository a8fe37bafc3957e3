package model

import "time"

// Occurrence is one concrete instance of a calendar event inside a preview
// window, after recurrence expansion and timezone normalization. It is the
// output shape of the `events` command; the serving path never flattens
// events this way.
type Occurrence struct {
	UID      string
	Summary  string
	Location string

	AllDay bool

	// Start / End are in the display timezone.
	Start time.Time
	End   time.Time
}
