package logic

import (
	"fmt"
	"sort"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// DefaultRules is the embedded contradiction rule set. A config-supplied
// rules file may replace it at runtime through Kernel.SetRules (see Watcher).
//
// EDB predicates asserted by the bridge:
//
//	stated(EventId, Token)         - content token of a non-negated event
//	denied(EventId, Token)         - content token of a negated event
//	mentions_time(EventId, Token)  - temporal token in an event
//	uses_absolute(EventId, Word)   - absolute quantifier in an event
//	has_contrast_marker(EventId)   - event content pivots on "but"/"however"
const DefaultRules = `
Decl stated(EventId, Token).
Decl denied(EventId, Token).
Decl mentions_time(EventId, Token).
Decl uses_absolute(EventId, Word).
Decl has_contrast_marker(EventId).
Decl time_opposite(X, Y).
Decl absolute_opposite(X, Y).
Decl negation_conflict(A, B).
Decl temporal_conflict(A, B).
Decl logical_conflict(A, B).

time_opposite("yesterday", "today").
time_opposite("today", "yesterday").
time_opposite("today", "tomorrow").
time_opposite("tomorrow", "today").
time_opposite("before", "after").
time_opposite("after", "before").
time_opposite("morning", "evening").
time_opposite("evening", "morning").
time_opposite("am", "pm").
time_opposite("pm", "am").

absolute_opposite("always", "never").
absolute_opposite("never", "always").
absolute_opposite("all", "none").
absolute_opposite("none", "all").

negation_conflict(A, B) :- stated(A, T), denied(B, T).
temporal_conflict(A, B) :- mentions_time(A, X), mentions_time(B, Y), time_opposite(X, Y).
logical_conflict(A, B) :- uses_absolute(A, X), uses_absolute(B, Y), absolute_opposite(X, Y).
logical_conflict(A, A) :- has_contrast_marker(A).
`

// InconsistencyKind names the pattern family a derived conflict belongs to.
type InconsistencyKind string

const (
	InconsistencyNegation InconsistencyKind = "negation"
	InconsistencyTemporal InconsistencyKind = "temporal"
	InconsistencyLogical  InconsistencyKind = "logical"
)

// Inconsistency is one derived conflict between two events (EventA == EventB
// marks an internal conflict within a single event's content).
type Inconsistency struct {
	Kind       InconsistencyKind
	EventA     string
	EventB     string
	Confidence float64
}

var absoluteWords = map[string]bool{
	"always": true, "never": true, "all": true, "none": true,
}

var bridgeNegationWords = map[string]bool{
	"not": true, "never": true, "no": true, "cannot": true, "can't": true,
}

// contrastMarkers pivot a single event's content against itself ("the deploy
// worked but the service is down"), which the rules surface as an internal
// logical conflict.
var contrastMarkers = map[string]bool{
	"but": true, "however": true,
}

var bridgeTemporalTokens = map[string]bool{
	"yesterday": true, "today": true, "tomorrow": true,
	"before": true, "after": true, "morning": true, "evening": true,
	"am": true, "pm": true,
}

// stopwords excluded from the shared-vocabulary predicates so that articles
// and copulas do not connect unrelated events.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "and": true,
	"in": true, "on": true, "for": true, "with": true, "it": true,
	"that": true, "this": true, "but": true, "however": true,
}

// AnalyzeEvents asserts the events' vocabulary into a fresh kernel state and
// returns the derived inconsistencies, deduplicated and with pair ordering
// normalized.
func AnalyzeEvents(k *Kernel, events []*types.StoryEvent) ([]Inconsistency, error) {
	k.Reset()

	var edb []Fact
	for _, ev := range events {
		tokens := tokenize(ev.Content)
		negated := false
		for _, t := range tokens {
			if bridgeNegationWords[t] {
				negated = true
				break
			}
		}
		contrastSeen := false
		for _, t := range tokens {
			if contrastMarkers[t] {
				if !contrastSeen {
					contrastSeen = true
					edb = append(edb, Fact{Predicate: "has_contrast_marker", Args: []interface{}{ev.ID}})
				}
				continue
			}
			if bridgeTemporalTokens[t] {
				edb = append(edb, Fact{Predicate: "mentions_time", Args: []interface{}{ev.ID, t}})
				continue
			}
			// "never" is both a negation marker and an absolute quantifier;
			// classify it as absolute so the logical family sees it.
			if absoluteWords[t] {
				edb = append(edb, Fact{Predicate: "uses_absolute", Args: []interface{}{ev.ID, t}})
				continue
			}
			if stopwords[t] || bridgeNegationWords[t] {
				continue
			}
			if negated {
				edb = append(edb, Fact{Predicate: "denied", Args: []interface{}{ev.ID, t}})
			} else {
				edb = append(edb, Fact{Predicate: "stated", Args: []interface{}{ev.ID, t}})
			}
		}
	}

	if err := k.LoadFacts(edb); err != nil {
		return nil, fmt.Errorf("failed to load event facts: %w", err)
	}

	byID := make(map[string]*types.StoryEvent, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	var out []Inconsistency
	seen := map[string]bool{}

	collect := func(predicate string, kind InconsistencyKind) error {
		derived, err := k.Query(predicate)
		if err != nil {
			return err
		}
		for _, d := range derived {
			if len(d.Args) != 2 {
				continue
			}
			a, aok := d.Args[0].(string)
			b, bok := d.Args[1].(string)
			if !aok || !bok {
				continue
			}
			// Normalize ordering so (A,B) and (B,A) dedupe to one finding.
			if b < a {
				a, b = b, a
			}
			key := string(kind) + "|" + a + "|" + b
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Inconsistency{
				Kind:       kind,
				EventA:     a,
				EventB:     b,
				Confidence: pairConfidence(kind, byID[a], byID[b]),
			})
		}
		return nil
	}

	for _, c := range []struct {
		predicate string
		kind      InconsistencyKind
	}{
		{"negation_conflict", InconsistencyNegation},
		{"temporal_conflict", InconsistencyTemporal},
		{"logical_conflict", InconsistencyLogical},
	} {
		if err := collect(c.predicate, c.kind); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].EventA < out[j].EventA
	})

	logging.Get(logging.CategoryLogic).Debug("derived %d inconsistencies from %d events", len(out), len(events))
	return out, nil
}

// pairConfidence scores a derived pair. Negation findings scale with shared
// vocabulary; temporal and logical findings carry fixed family confidences.
func pairConfidence(kind InconsistencyKind, a, b *types.StoryEvent) float64 {
	switch kind {
	case InconsistencyTemporal:
		return 0.6
	case InconsistencyLogical:
		return 0.75
	}

	if a == nil || b == nil {
		return 0.65
	}
	shared := 0
	seen := map[string]bool{}
	for _, t := range tokenize(a.Content) {
		if !stopwords[t] {
			seen[t] = true
		}
	}
	for _, t := range tokenize(b.Content) {
		if seen[t] {
			shared++
			seen[t] = false
		}
	}
	conf := 0.5 + 0.05*float64(shared)
	if conf > 0.9 {
		conf = 0.9
	}
	return conf
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
