package config

import (
	"errors"
	"fmt"
	"sort"

	"icalmerge/internal/pipeline"
)

// Validate checks field values, compiles every step pipeline, verifies that
// calendar references resolve, and proves the reference graph acyclic. It
// runs once per load/reload, never per request; request latency stays
// independent of graph size.
func (c *Config) Validate() error {
	if len(c.Calendars) == 0 {
		return errors.New("no calendars configured")
	}

	ids := make([]string, 0, len(c.Calendars))
	for id := range c.Calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cal := c.Calendars[id]
		if cal == nil {
			return fmt.Errorf("calendar %q has no definition", id)
		}
		if len(cal.Sources) == 0 {
			return fmt.Errorf("calendar %q has no sources", id)
		}

		for i := range cal.Sources {
			src := &cal.Sources[i]
			// Decode paths settle the kind already; programmatically built
			// configs settle it here.
			if src.Kind == SourceUnknown {
				if err := src.decideKind(); err != nil {
					return fmt.Errorf("calendar %q source %d: %w", id, i, err)
				}
			}

			compiled, err := pipeline.Compile(src.Steps)
			if err != nil {
				return fmt.Errorf("calendar %q source %d: %w", id, i, err)
			}
			src.compiled = compiled

			if src.Kind == SourceCalendar {
				if _, ok := c.Calendars[src.Calendar]; !ok {
					return fmt.Errorf("calendar %q source %d references unknown calendar %q: %w",
						id, i, src.Calendar, ErrUnknownReference)
				}
			}
		}

		compiled, err := pipeline.Compile(cal.Steps)
		if err != nil {
			return fmt.Errorf("calendar %q: %w", id, err)
		}
		cal.compiled = compiled
	}

	return c.validateAcyclic(ids)
}

// validateAcyclic runs a depth-first traversal over calendar-reference edges
// with the usual on-path/explored coloring. A node found on the current path
// is a cycle; the witness path is reported in the error. Self-references are
// cycles of length one. O(V+E) over calendars and references.
func (c *Config) validateAcyclic(ids []string) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(c.Calendars))
	var path []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		path = append(path, id)

		for _, target := range c.referencesOf(id) {
			switch color[target] {
			case white:
				if dfs(target) {
					return true
				}
			case gray:
				// Back-edge. Close the loop from the first on-path
				// occurrence of target.
				start := 0
				for i, p := range path {
					if p == target {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), target)
				return true
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white && dfs(id) {
			return &CycleError{Path: cycle}
		}
	}
	return nil
}

// referencesOf lists the calendar ids referenced by the sources of id, in
// source order.
func (c *Config) referencesOf(id string) []string {
	cal := c.Calendars[id]
	if cal == nil {
		return nil
	}
	var out []string
	for i := range cal.Sources {
		if cal.Sources[i].Kind == SourceCalendar {
			out = append(out, cal.Sources[i].Calendar)
		}
	}
	return out
}
