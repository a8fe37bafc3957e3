package ics

import (
	"fmt"

	ical "github.com/arran4/golang-ical"
)

// Field names one of the event text fields the processing steps may read or
// rewrite. Everything else an event carries (timestamps, recurrence rules,
// attendees, ...) passes through untouched.
type Field string

const (
	FieldSummary     Field = "summary"
	FieldDescription Field = "description"
	FieldLocation    Field = "location"
)

// ParseField validates a config-supplied field name.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldSummary, FieldDescription, FieldLocation:
		return Field(s), nil
	default:
		return "", fmt.Errorf("unknown field %q (expected summary, description or location)", s)
	}
}

func (f Field) property() ical.ComponentProperty {
	switch f {
	case FieldDescription:
		return ical.ComponentPropertyDescription
	case FieldLocation:
		return ical.ComponentPropertyLocation
	default:
		return ical.ComponentPropertySummary
	}
}

// Event wraps a single parsed VEVENT. The wrapper keeps the underlying
// component intact so serialization reproduces every property the feed sent;
// only the accessors below mutate it.
type Event struct {
	ve *ical.VEvent
}

// WrapEvent adopts an already-parsed VEVENT.
func WrapEvent(ve *ical.VEvent) *Event {
	return &Event{ve: ve}
}

// VEvent exposes the underlying component for calendar assembly.
func (e *Event) VEvent() *ical.VEvent {
	return e.ve
}

// UID returns the event's UID, or "" when the feed did not set one.
// Events without a UID are never deduplicated against each other.
func (e *Event) UID() string {
	if p := e.ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}

// Get returns the named text field and whether it is present.
func (e *Event) Get(f Field) (string, bool) {
	if p := e.ve.GetProperty(f.property()); p != nil {
		return p.Value, true
	}
	return "", false
}

// Set replaces the named text field, creating it if absent.
func (e *Event) Set(f Field, value string) {
	e.ve.SetProperty(f.property(), value)
}

// HasAlarm reports whether the event carries at least one VALARM.
func (e *Event) HasAlarm() bool {
	for _, c := range e.ve.Components {
		if _, ok := c.(*ical.VAlarm); ok {
			return true
		}
	}
	return false
}

// StripAlarms removes all VALARM sub-components. No-op when none exist.
func (e *Event) StripAlarms() {
	if !e.HasAlarm() {
		return
	}
	kept := make([]ical.Component, 0, len(e.ve.Components))
	for _, c := range e.ve.Components {
		if _, ok := c.(*ical.VAlarm); ok {
			continue
		}
		kept = append(kept, c)
	}
	e.ve.Components = kept
}
