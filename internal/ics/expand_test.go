package ics

import (
	"testing"
	"time"
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func marchWindow() ExpandOptions {
	return ExpandOptions{
		DisplayLocation: time.UTC,
		RangeStart:      utc(2026, time.March, 1, 0, 0),
		RangeEnd:        utc(2026, time.March, 10, 0, 0),
	}
}

func TestExpandPlacesSingleEventInWindow(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T100000Z",
		"SUMMARY:Kickoff",
		"LOCATION:Room 4",
	)

	occs, err := ExpandOccurrences([]*Event{ev}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("occurrences: got %d, want 1", len(occs))
	}

	occ := occs[0]
	if !occ.Start.Equal(utc(2026, time.March, 2, 9, 0)) {
		t.Fatalf("start: got %v, want %v", occ.Start, utc(2026, time.March, 2, 9, 0))
	}
	if !occ.End.Equal(utc(2026, time.March, 2, 10, 0)) {
		t.Fatalf("end: got %v, want %v", occ.End, utc(2026, time.March, 2, 10, 0))
	}
	if occ.AllDay {
		t.Fatal("timed event: got all-day")
	}
	if occ.Summary != "Kickoff" || occ.Location != "Room 4" || occ.UID != "fixture-event" {
		t.Fatalf("occurrence fields: got %+v", occ)
	}
}

func TestExpandDropsEventOutsideWindow(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260401T090000Z",
		"DTEND:20260401T100000Z",
		"SUMMARY:Next month",
	)

	occs, err := ExpandOccurrences([]*Event{ev}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 0 {
		t.Fatalf("occurrences: got %d, want 0", len(occs))
	}
}

func TestExpandDailyRecurrence(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T100000Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"SUMMARY:Daily standup",
	)

	occs, err := ExpandOccurrences([]*Event{ev}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 5 {
		t.Fatalf("occurrences: got %d, want 5", len(occs))
	}
	for i, occ := range occs {
		wantStart := utc(2026, time.March, 2+i, 9, 0)
		if !occ.Start.Equal(wantStart) {
			t.Fatalf("occurrence %d start: got %v, want %v", i, occ.Start, wantStart)
		}
		if got := occ.End.Sub(occ.Start); got != time.Hour {
			t.Fatalf("occurrence %d duration: got %v, want 1h", i, got)
		}
	}
}

func TestExpandHonorsExdate(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T100000Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20260304T090000Z",
		"SUMMARY:Daily standup",
	)

	occs, err := ExpandOccurrences([]*Event{ev}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 4 {
		t.Fatalf("occurrences: got %d, want 4", len(occs))
	}
	excluded := utc(2026, time.March, 4, 9, 0)
	for _, occ := range occs {
		if occ.Start.Equal(excluded) {
			t.Fatalf("excluded occurrence %v still present", excluded)
		}
	}
}

func TestExpandWindowLimitsRecurrence(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T100000Z",
		"RRULE:FREQ=DAILY;COUNT=30",
		"SUMMARY:Long series",
	)

	opts := marchWindow()
	opts.RangeEnd = utc(2026, time.March, 4, 23, 59)

	occs, err := ExpandOccurrences([]*Event{ev}, opts)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("occurrences: got %d, want 3 (March 2-4)", len(occs))
	}
}

func TestExpandCapsOccurrencesPerEvent(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260301T090000Z",
		"DTEND:20260301T100000Z",
		"RRULE:FREQ=DAILY;COUNT=9",
		"SUMMARY:Runaway series",
	)

	opts := marchWindow()
	opts.MaxPerEvent = 3

	occs, err := ExpandOccurrences([]*Event{ev}, opts)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("occurrences: got %d, want cap of 3", len(occs))
	}
}

func TestExpandAllDayEvent(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART;VALUE=DATE:20260305",
		"DTEND;VALUE=DATE:20260306",
		"SUMMARY:Company holiday",
	)

	occs, err := ExpandOccurrences([]*Event{ev}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("occurrences: got %d, want 1", len(occs))
	}
	if !occs[0].AllDay {
		t.Fatal("date-only event: got timed, want all-day")
	}
	if occs[0].Summary != "Company holiday" {
		t.Fatalf("summary: got %q, want %q", occs[0].Summary, "Company holiday")
	}
}

func TestExpandSortsByStartTime(t *testing.T) {
	later := singleEvent(t, "DTSTART:20260305T090000Z", "DTEND:20260305T100000Z", "SUMMARY:Later")
	earlier := singleEvent(t, "DTSTART:20260302T090000Z", "DTEND:20260302T100000Z", "SUMMARY:Earlier")

	occs, err := ExpandOccurrences([]*Event{later, earlier}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("occurrences: got %d, want 2", len(occs))
	}
	if occs[0].Summary != "Earlier" || occs[1].Summary != "Later" {
		t.Fatalf("order: got [%s, %s], want [Earlier, Later]", occs[0].Summary, occs[1].Summary)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	opts := ExpandOptions{
		RangeStart: utc(2026, time.March, 10, 0, 0),
		RangeEnd:   utc(2026, time.March, 1, 0, 0),
	}
	if _, err := ExpandOccurrences(nil, opts); err == nil {
		t.Fatal("inverted range: got nil error")
	}
}

func TestExpandSkipsUnparsableRRule(t *testing.T) {
	ev := singleEvent(t,
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T100000Z",
		"RRULE:FREQ=NONSENSE",
		"SUMMARY:Broken series",
	)

	occs, err := ExpandOccurrences([]*Event{ev}, marchWindow())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 0 {
		t.Fatalf("occurrences from broken RRULE: got %d, want 0", len(occs))
	}
}
