package ics

import (
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "icalmerge/internal/log"
	"icalmerge/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// ExpandOptions controls how preview occurrences are produced.
type ExpandOptions struct {
	// DisplayLocation is the timezone all occurrences are converted into.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive preview window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxPerEvent caps recurrence expansion per event so a runaway RRULE
	// cannot stall the preview. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxPerEvent int
}

// ExpandOccurrences turns merged events into concrete occurrences within the
// preview window, sorted by start time. It handles:
//
//   - single non-recurring events
//   - RRULE-based recurrence
//   - EXDATE exception removal
//   - all-day semantics
//
// Events whose RRULE fails to parse are reported and skipped; the preview is
// best effort and never fails on one bad event.
func ExpandOccurrences(events []*Event, opts ExpandOptions) ([]model.Occurrence, error) {
	if opts.RangeEnd.Before(opts.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if opts.DisplayLocation == nil {
		opts.DisplayLocation = time.Local
	}
	if opts.MaxPerEvent <= 0 {
		opts.MaxPerEvent = defaultMaxOccurrencesPerEvent
	}

	out := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		out = append(out, expandEvent(ev, opts)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Summary < out[j].Summary
	})

	return out, nil
}

func expandEvent(ev *Event, opts ExpandOptions) []model.Occurrence {
	ve := ev.VEvent()

	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	if start.IsZero() {
		// Undated events cannot be placed in a window.
		return nil
	}
	if end.IsZero() || end.Before(start) {
		end = start
	}

	allDay := isAllDay(ve)
	rawRRule := ""
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}

	if rawRRule == "" {
		if !timeRangesOverlap(start, end, opts.RangeStart, opts.RangeEnd) {
			return nil
		}
		return []model.Occurrence{makeOccurrence(ev, start, end, allDay, opts.DisplayLocation)}
	}

	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		appLog.Warn("expand: failed to parse RRULE, skipping event", err, "uid", ev.UID(), "rrule", rawRRule)
		return nil
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exDates(ve) {
		// Align EXDATE location with the event's start for comparison.
		set.ExDate(ex.In(start.Location()))
	}

	rangeStart := opts.RangeStart.In(start.Location())
	rangeEnd := opts.RangeEnd.In(start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)
	if len(occTimes) > opts.MaxPerEvent {
		appLog.Warn("expand: truncated occurrences", errors.New("max occurrences reached"),
			"uid", ev.UID(), "cap", opts.MaxPerEvent)
		occTimes = occTimes[:opts.MaxPerEvent]
	}

	dur := end.Sub(start)
	occs := make([]model.Occurrence, 0, len(occTimes))
	for _, occStart := range occTimes {
		var occEnd time.Time
		if allDay {
			// All-day: [date 00:00, next day 00:00) in the event's timezone.
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(dur)
		}
		occs = append(occs, makeOccurrence(ev, occStart, occEnd, allDay, opts.DisplayLocation))
	}
	return occs
}

// isAllDay detects date-only events by inspecting the DTSTART value format.
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// exDates collects EXDATE values. EXDATE can appear multiple times and each
// occurrence may carry a comma-separated list.
func exDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseICSTime parses a basic ICS date/date-time string. EXDATE handling does
// not carry full parameter context, so this covers the DATE, local DATE-TIME
// and UTC forms only.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		return time.ParseInLocation(layout, v, time.Local)
	}

	// Date-only (all-day), e.g., 20250101
	const layoutDate = "20060102"
	return time.ParseInLocation(layoutDate, v, time.Local)
}

func makeOccurrence(ev *Event, start, end time.Time, allDay bool, displayLoc *time.Location) model.Occurrence {
	summary, _ := ev.Get(FieldSummary)
	location, _ := ev.Get(FieldLocation)
	return model.Occurrence{
		UID:      ev.UID(),
		Summary:  summary,
		Location: location,
		AllDay:   allDay,
		Start:    start.In(displayLoc),
		End:      end.In(displayLoc),
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
