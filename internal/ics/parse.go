package ics

import (
	"bytes"
	"errors"

	ical "github.com/arran4/golang-ical"
)

const productID = "-//icalmerge//EN"

// ParseEvents parses one iCalendar payload into wrapped events. Non-VEVENT
// components of the feed (VTIMEZONE and friends) are not carried over; merged
// output is rebuilt around the events alone.
func ParseEvents(body []byte) ([]*Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty calendar body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	ves := cal.Events()
	events := make([]*Event, 0, len(ves))
	for _, ve := range ves {
		events = append(events, WrapEvent(ve))
	}
	return events, nil
}

// BuildCalendar assembles a fresh VCALENDAR document around the given events.
// The events keep every property they arrived with.
func BuildCalendar(name string, events []*Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")
	if name != "" {
		cal.SetXWRCalName(name)
	}
	for _, ev := range events {
		cal.AddVEvent(ev.VEvent())
	}
	return cal
}
