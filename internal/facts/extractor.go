// Package facts turns raw text from story events and incoming observations
// into typed Fact records for pairwise conflict analysis.
//
// The default extractor is lexical: unit-bearing numeric patterns, modal and
// negation patterns for booleans, and day/date/relative tokens for temporals.
// Any implementation satisfying Extractor (typed facts with provenance) can
// be substituted without touching the coherence engine.
package facts

import (
	"regexp"
	"strconv"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// Extractor converts a source into typed facts carrying provenance and a
// confidence inherited from the source.
type Extractor interface {
	FromEvent(event *types.StoryEvent) []types.Fact
	FromObservation(obs types.ObservationEntry) []types.Fact
}

// LexicalExtractor is the default pattern-matching implementation.
type LexicalExtractor struct{}

// NewLexicalExtractor returns the default extractor.
func NewLexicalExtractor() *LexicalExtractor {
	return &LexicalExtractor{}
}

var (
	// Unit-bearing numerics: time, mass, length, currency, percentage.
	numericalPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ms|milliseconds?|seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|kg|kilograms?|grams?|lbs?|pounds?|km|kilometers?|meters?|cm|miles?|mi\b|dollars?|usd|%|percent)`)
	currencyPattern  = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)`)

	// Modal/negation booleans: "is/are/was/were [not] <predicate>",
	// "can/cannot <predicate>".
	modalPattern  = regexp.MustCompile(`(?i)\b(is|are|was|were)\s+(not\s+)?([a-z][a-z_-]*)\b`)
	abilityPattern = regexp.MustCompile(`(?i)\b(can|cannot|can['’]?t)\s+([a-z][a-z_-]*)\b`)

	// Temporal tokens: day names, dates, relative time, clock time.
	dayPattern      = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	datePattern     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)
	relativePattern = regexp.MustCompile(`(?i)\b(yesterday|today|tomorrow|morning|evening|before\s+\w+|after\s+\w+)\b`)
	clockPattern    = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(am|pm)?\b`)
)

// unitAliases normalizes unit spellings so comparisons match across sources.
var unitAliases = map[string]string{
	"millisecond": "ms", "milliseconds": "ms",
	"second": "s", "seconds": "s", "sec": "s", "secs": "s",
	"minute": "min", "minutes": "min", "mins": "min",
	"hour": "h", "hours": "h", "hr": "h", "hrs": "h",
	"day": "d", "days": "d",
	"kilogram": "kg", "kilograms": "kg",
	"gram": "g", "grams": "g",
	"pound": "lb", "pounds": "lb", "lbs": "lb",
	"kilometer": "km", "kilometers": "km",
	"meter": "m", "meters": "m",
	"mile": "mi", "miles": "mi",
	"dollar": "usd", "dollars": "usd", "$": "usd",
	"percent": "%",
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if alias, ok := unitAliases[u]; ok {
		return alias
	}
	return u
}

// FromEvent extracts facts from a story event's content.
func (e *LexicalExtractor) FromEvent(event *types.StoryEvent) []types.Fact {
	if event == nil {
		return nil
	}
	result := e.extractText(event.Content, event.ID, "", event.Confidence)

	// Belief/evidence events always yield a statement fact as the fallback
	// comparison unit, even when no structured pattern matched.
	if event.EventType == types.EventBeliefFormed ||
		event.EventType == types.EventBeliefRevised ||
		event.EventType == types.EventEvidenceReceived {
		result = append(result, types.Fact{
			Type:       types.FactStatement,
			Text:       normalizeStatement(event.Content),
			OriginID:   event.ID,
			Confidence: event.Confidence,
		})
	}

	logging.Get(logging.CategoryFacts).Debug("extracted %d facts from event %s", len(result), event.ID)
	return result
}

// FromObservation extracts facts from an incoming observation delta.
func (e *LexicalExtractor) FromObservation(obs types.ObservationEntry) []types.Fact {
	text := obs.Key + ": " + obs.Value
	result := e.extractText(text, "", obs.Key, obs.Confidence)

	// Observations carry a raw statement fact unconditionally.
	result = append(result, types.Fact{
		Type:       types.FactStatement,
		Text:       normalizeStatement(text),
		OriginKey:  obs.Key,
		Confidence: obs.Confidence,
	})
	return result
}

func (e *LexicalExtractor) extractText(text, originID, originKey string, confidence float64) []types.Fact {
	var result []types.Fact

	add := func(f types.Fact) {
		f.OriginID = originID
		f.OriginKey = originKey
		f.Confidence = confidence
		result = append(result, f)
	}

	for _, m := range numericalPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		add(types.Fact{Type: types.FactNumerical, Value: value, Unit: normalizeUnit(m[2])})
	}
	for _, m := range currencyPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		add(types.Fact{Type: types.FactNumerical, Value: value, Unit: "usd"})
	}

	for _, m := range modalPattern.FindAllStringSubmatch(text, -1) {
		negated := strings.TrimSpace(m[2]) != ""
		add(types.Fact{
			Type:      types.FactBoolean,
			BoolValue: !negated,
			Token:     strings.ToLower(m[3]),
		})
	}
	for _, m := range abilityPattern.FindAllStringSubmatch(text, -1) {
		verb := strings.ToLower(m[1])
		negated := verb != "can"
		add(types.Fact{
			Type:      types.FactBoolean,
			BoolValue: !negated,
			Token:     strings.ToLower(m[2]),
		})
	}

	for _, pattern := range []*regexp.Regexp{dayPattern, datePattern, relativePattern, clockPattern} {
		for _, tok := range pattern.FindAllString(text, -1) {
			add(types.Fact{Type: types.FactTemporal, Token: strings.ToLower(strings.TrimSpace(tok))})
		}
	}

	return result
}

// normalizeStatement lower-cases and trims statement text so token
// comparisons are stable across sources.
func normalizeStatement(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
