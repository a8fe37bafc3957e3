// Package merge resolves virtual calendars: it fans out per-source
// resolution, applies calendar-level steps, and deduplicates by uid.
// Failures of individual sources are soft; the merge always produces a
// result for a known calendar id.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"icalmerge/internal/config"
	"icalmerge/internal/ics"
	appLog "icalmerge/internal/log"
	"icalmerge/internal/pipeline"
)

// ErrNotFound reports a request for a calendar id the configuration does not
// define. The HTTP layer maps it to 404.
var ErrNotFound = errors.New("calendar not found")

// SourceError records one source's failure alongside the partial results of
// its siblings.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Result is the outcome of merging one virtual calendar: the surviving
// events in deterministic order plus the soft errors collected along the
// way. Produced fresh per request, never cached.
type Result struct {
	Events []*ics.Event
	Errors []SourceError
}

// Merger resolves virtual calendars against configuration snapshots. It is
// stateless apart from the shared fetcher and safe for concurrent use.
type Merger struct {
	fetcher *ics.Fetcher
}

func New(fetcher *ics.Fetcher) *Merger {
	return &Merger{fetcher: fetcher}
}

// Merge resolves the calendar id against one configuration snapshot. The
// only hard failure is an unknown id; everything below it degrades into
// Result.Errors.
func (m *Merger) Merge(ctx context.Context, cfg *config.Config, id string) (*Result, error) {
	return m.merge(ctx, cfg, id, map[string]struct{}{id: {}})
}

type sourceOutcome struct {
	events []*ics.Event
	errs   []SourceError
}

// merge fans out one goroutine per source, writes each outcome into its
// configured slot, and joins on all of them. One slow or failing source
// never cancels its siblings, and concatenation order is config order, not
// completion order.
func (m *Merger) merge(ctx context.Context, cfg *config.Config, id string, path map[string]struct{}) (*Result, error) {
	cal, ok := cfg.Calendars[id]
	if !ok {
		return nil, fmt.Errorf("calendar %q: %w", id, ErrNotFound)
	}

	outcomes := make([]sourceOutcome, len(cal.Sources))
	var wg sync.WaitGroup
	for i := range cal.Sources {
		wg.Add(1)
		go func(i int, src *config.Source) {
			defer wg.Done()
			events, errs := m.resolveSource(ctx, cfg, src, path)
			outcomes[i] = sourceOutcome{events: events, errs: errs}
		}(i, &cal.Sources[i])
	}
	wg.Wait()

	res := &Result{}
	for _, oc := range outcomes {
		res.Events = append(res.Events, oc.events...)
		res.Errors = append(res.Errors, oc.errs...)
	}

	res.Events = applySteps(cal.Pipeline(), res.Events)
	res.Events = dedupe(res.Events)
	return res, nil
}

// resolveSource produces the events of one source plus its soft errors. It
// never fails hard: transport, parse and nested resolution problems come
// back as error entries with zero events.
func (m *Merger) resolveSource(ctx context.Context, cfg *config.Config, src *config.Source, path map[string]struct{}) ([]*ics.Event, []SourceError) {
	switch src.Kind {
	case config.SourceURL:
		body, err := m.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			appLog.Warn("source fetch failed", err, "url", ics.RedactURL(src.URL))
			return nil, []SourceError{{Source: src.Identifier(), Err: err}}
		}
		events, err := ics.ParseEvents(body)
		if err != nil {
			appLog.Warn("source parse failed", err, "url", ics.RedactURL(src.URL))
			return nil, []SourceError{{Source: src.Identifier(), Err: err}}
		}
		return applySteps(src.Pipeline(), events), nil

	case config.SourceCalendar:
		ref := src.Calendar
		// Load-time validation proves the graph acyclic; the path set only
		// guards against a config that bypassed Validate.
		if _, on := path[ref]; on {
			err := fmt.Errorf("calendar reference loop through %q", ref)
			appLog.Error("source resolution hit a reference loop", err, "calendar", ref)
			return nil, []SourceError{{Source: src.Identifier(), Err: err}}
		}
		child := make(map[string]struct{}, len(path)+1)
		for k := range path {
			child[k] = struct{}{}
		}
		child[ref] = struct{}{}

		sub, err := m.merge(ctx, cfg, ref, child)
		if err != nil {
			return nil, []SourceError{{Source: src.Identifier(), Err: err}}
		}
		// This source's own steps run atop the referenced calendar's
		// already-merged, already-deduplicated events.
		events := applySteps(src.Pipeline(), sub.Events)
		return events, sub.Errors

	default:
		err := errors.New("source has no url or calendar")
		return nil, []SourceError{{Source: src.Identifier(), Err: err}}
	}
}

// applySteps runs the compiled pipeline over each event, dropping rejected
// ones. Events are mutated in place; each resolution branch owns its events.
func applySteps(p *pipeline.Pipeline, events []*ics.Event) []*ics.Event {
	if p.Len() == 0 {
		return events
	}
	kept := make([]*ics.Event, 0, len(events))
	for _, ev := range events {
		if p.Apply(ev) {
			kept = append(kept, ev)
		}
	}
	return kept
}

// dedupe drops later occurrences of a non-empty uid; the first occurrence by
// concatenation order wins. Events without a uid all survive in their
// original relative positions.
func dedupe(events []*ics.Event) []*ics.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]*ics.Event, 0, len(events))
	for _, ev := range events {
		uid := ev.UID()
		if uid == "" {
			out = append(out, ev)
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, ev)
	}
	return out
}
