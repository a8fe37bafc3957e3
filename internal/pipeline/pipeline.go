// Package pipeline compiles declarative processing steps into executable
// form and applies them to single events. Compilation happens once per
// configuration load; Apply runs per event and cannot fail.
package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"icalmerge/internal/ics"
)

// StepConfig is the declarative form of one step as it appears in the
// configuration document. Which fields are meaningful depends on Type:
//
//	allow/deny: patterns, mode (any|all), fields
//	replace:    pattern, replacement, field
//	case:       transform (lower|upper|sentence|title), field
//	strip:      component (reminder)
type StepConfig struct {
	Type string `yaml:"type" json:"type"`

	// Allow / Deny
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Mode     string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Fields   []string `yaml:"fields,omitempty" json:"fields,omitempty"`

	// Replace
	Pattern     string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Replacement string `yaml:"replacement,omitempty" json:"replacement,omitempty"`

	// Replace / Case
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Case
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`

	// Strip
	Component string `yaml:"component,omitempty" json:"component,omitempty"`
}

// Pipeline is an ordered list of compiled steps.
type Pipeline struct {
	steps []step
}

// step is one compiled unit. apply reports whether the event survives;
// filter steps return false to reject, transform steps always return true.
type step interface {
	apply(ev *ics.Event) bool
}

// Compile validates the step definitions and compiles their regexes. All
// config-level errors (unknown type, unknown field, invalid regex, ...)
// surface here so Apply never has to fail.
func Compile(defs []StepConfig) (*Pipeline, error) {
	steps := make([]step, 0, len(defs))
	for i, def := range defs {
		s, err := compileStep(def)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, s)
	}
	return &Pipeline{steps: steps}, nil
}

// Apply runs the steps in order against one event, mutating it in place.
// The first allow/deny step that rejects stops the pipeline; later steps do
// not run and the caller drops the event. A nil pipeline keeps everything.
func (p *Pipeline) Apply(ev *ics.Event) bool {
	if p == nil {
		return true
	}
	for _, s := range p.steps {
		if !s.apply(ev) {
			return false
		}
	}
	return true
}

// Len reports the number of compiled steps.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

type matchMode int

const (
	matchAny matchMode = iota
	matchAll
)

var defaultFields = []ics.Field{ics.FieldSummary, ics.FieldDescription}

func compileStep(def StepConfig) (step, error) {
	switch strings.ToLower(def.Type) {
	case "allow":
		return compileMatchStep(def, false)
	case "deny":
		return compileMatchStep(def, true)
	case "replace":
		return compileReplaceStep(def)
	case "case":
		return compileCaseStep(def)
	case "strip":
		return compileStripStep(def)
	case "":
		return nil, errors.New("step type is required")
	default:
		return nil, fmt.Errorf("unknown step type %q", def.Type)
	}
}

// matchStep implements both allow (invert=false) and deny (invert=true).
type matchStep struct {
	patterns []*regexp.Regexp
	mode     matchMode
	fields   []ics.Field
	invert   bool
}

func compileMatchStep(def StepConfig, invert bool) (step, error) {
	if len(def.Patterns) == 0 {
		return nil, fmt.Errorf("%s step requires at least one pattern", strings.ToLower(def.Type))
	}

	mode, err := parseMode(def.Mode)
	if err != nil {
		return nil, err
	}

	fields, err := parseFields(def.Fields)
	if err != nil {
		return nil, err
	}

	patterns := make([]*regexp.Regexp, 0, len(def.Patterns))
	for _, raw := range def.Patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}

	return &matchStep{
		patterns: patterns,
		mode:     mode,
		fields:   fields,
		invert:   invert,
	}, nil
}

func parseMode(s string) (matchMode, error) {
	switch s {
	case "", "any":
		return matchAny, nil
	case "all":
		return matchAll, nil
	default:
		return 0, fmt.Errorf("unknown match mode %q (expected any or all)", s)
	}
}

func parseFields(names []string) ([]ics.Field, error) {
	if len(names) == 0 {
		return defaultFields, nil
	}
	fields := make([]ics.Field, 0, len(names))
	for _, name := range names {
		f, err := ics.ParseField(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *matchStep) apply(ev *ics.Event) bool {
	matched := s.matches(ev)
	if s.invert {
		return !matched
	}
	return matched
}

// matches evaluates the pattern set against the configured fields. A single
// pattern matches when it matches at least one field's text. Mode any needs
// one matching pattern; mode all needs every pattern to match.
func (s *matchStep) matches(ev *ics.Event) bool {
	if s.mode == matchAll {
		for _, re := range s.patterns {
			if !s.matchesAnyField(re, ev) {
				return false
			}
		}
		return true
	}
	for _, re := range s.patterns {
		if s.matchesAnyField(re, ev) {
			return true
		}
	}
	return false
}

func (s *matchStep) matchesAnyField(re *regexp.Regexp, ev *ics.Event) bool {
	for _, f := range s.fields {
		if text, ok := ev.Get(f); ok && re.MatchString(text) {
			return true
		}
	}
	return false
}

type replaceStep struct {
	re          *regexp.Regexp
	replacement string
	field       ics.Field
}

func compileReplaceStep(def StepConfig) (step, error) {
	if def.Pattern == "" {
		return nil, errors.New("replace step requires a pattern")
	}
	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", def.Pattern, err)
	}

	field, err := parseSingleField(def.Field)
	if err != nil {
		return nil, err
	}

	return &replaceStep{
		re:          re,
		replacement: def.Replacement,
		field:       field,
	}, nil
}

// apply substitutes every match in the configured field, with $1-style
// capture references expanded. No-op when the field is absent.
func (s *replaceStep) apply(ev *ics.Event) bool {
	if text, ok := ev.Get(s.field); ok {
		ev.Set(s.field, s.re.ReplaceAllString(text, s.replacement))
	}
	return true
}

type caseTransform int

const (
	caseLower caseTransform = iota
	caseUpper
	caseSentence
	caseTitle
)

type caseStep struct {
	transform caseTransform
	field     ics.Field
}

func compileCaseStep(def StepConfig) (step, error) {
	var transform caseTransform
	switch def.Transform {
	case "lower":
		transform = caseLower
	case "upper":
		transform = caseUpper
	case "sentence":
		transform = caseSentence
	case "title":
		transform = caseTitle
	case "":
		return nil, errors.New("case step requires a transform")
	default:
		return nil, fmt.Errorf("unknown case transform %q (expected lower, upper, sentence or title)", def.Transform)
	}

	field, err := parseSingleField(def.Field)
	if err != nil {
		return nil, err
	}

	return &caseStep{transform: transform, field: field}, nil
}

func (s *caseStep) apply(ev *ics.Event) bool {
	text, ok := ev.Get(s.field)
	if !ok {
		return true
	}
	switch s.transform {
	case caseLower:
		text = strings.ToLower(text)
	case caseUpper:
		text = strings.ToUpper(text)
	case caseSentence:
		text = sentenceCase(text)
	case caseTitle:
		text = titleCase(text)
	}
	ev.Set(s.field, text)
	return true
}

// sentenceCase uppercases the first character of the whole text and
// lowercases everything after it.
func sentenceCase(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[:1])) + strings.ToLower(string(r[1:]))
}

// titleCase uppercases the first character of every whitespace-delimited
// word and lowercases the rest of each word, so already-uppercase input
// comes out correctly. Whitespace runs are preserved as-is.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startWord := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			startWord = true
			b.WriteRune(r)
			continue
		}
		if startWord {
			b.WriteRune(unicode.ToUpper(r))
			startWord = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

type stripStep struct{}

func compileStripStep(def StepConfig) (step, error) {
	switch def.Component {
	case "", "reminder":
		return stripStep{}, nil
	default:
		return nil, fmt.Errorf("unknown strip component %q (only reminder is supported)", def.Component)
	}
}

func (stripStep) apply(ev *ics.Event) bool {
	ev.StripAlarms()
	return true
}

func parseSingleField(name string) (ics.Field, error) {
	if name == "" {
		return ics.FieldSummary, nil
	}
	return ics.ParseField(name)
}
