// Package conflict compares extracted fact sets pairwise and reports
// contradictions classified by type and severity.
//
// The thresholds here are the documented default policy; a stronger
// NLP-based comparator may substitute behind the Analyzer interface without
// changing callers.
package conflict

import (
	"fmt"
	"math"
	"strings"

	"storyloom/internal/logging"
	"storyloom/internal/types"
)

// Analyzer detects contradictions between a new fact set and an existing one.
type Analyzer interface {
	DetectConflicts(newFacts, existingFacts []types.Fact) []types.ConflictResult
}

// LexicalAnalyzer is the default threshold-based implementation.
type LexicalAnalyzer struct{}

// NewLexicalAnalyzer returns the default analyzer.
func NewLexicalAnalyzer() *LexicalAnalyzer {
	return &LexicalAnalyzer{}
}

const (
	// numericalConflictThreshold is the relative difference beyond which two
	// measurements of the same quantity conflict.
	numericalConflictThreshold = 0.20

	// numericalSevereThreshold upgrades severity for large divergences.
	numericalSevereThreshold = 0.50

	temporalConflictConfidence  = 0.7
	statementNegationConfidence = 0.8
	statementOverlapConfidence  = 0.6

	// statementOverlapMinTokens is the shared-token count beyond which two
	// statements are considered to be about the same thing.
	statementOverlapMinTokens = 2
)

// temporalOpposites pairs mutually exclusive temporal tokens.
var temporalOpposites = [][2]string{
	{"yesterday", "today"},
	{"today", "tomorrow"},
	{"before", "after"},
	{"morning", "evening"},
	{"am", "pm"},
}

var negationWords = map[string]bool{
	"not": true, "never": true, "no": true, "cannot": true,
	"can't": true, "isn't": true, "wasn't": true, "aren't": true,
	"weren't": true, "don't": true, "doesn't": true, "didn't": true,
}

// DetectConflicts runs pairwise comparison between facts of matching type.
func (a *LexicalAnalyzer) DetectConflicts(newFacts, existingFacts []types.Fact) []types.ConflictResult {
	var results []types.ConflictResult

	for _, nf := range newFacts {
		for _, ef := range existingFacts {
			if nf.Type != ef.Type {
				continue
			}
			var r *types.ConflictResult
			switch nf.Type {
			case types.FactNumerical:
				r = compareNumerical(nf, ef)
			case types.FactBoolean:
				r = compareBoolean(nf, ef)
			case types.FactTemporal:
				r = compareTemporal(nf, ef)
			case types.FactStatement:
				r = compareStatement(nf, ef)
			}
			if r != nil && r.HasConflict {
				results = append(results, *r)
			}
		}
	}

	if len(results) > 0 {
		logging.Get(logging.CategoryConflict).Info("detected %d conflicts across %d new / %d existing facts",
			len(results), len(newFacts), len(existingFacts))
	}
	return results
}

// compareNumerical flags measurements of the same unit that diverge by more
// than the relative-difference threshold. The denominator is the smaller
// magnitude (floored at 1) so the comparison is order-independent.
func compareNumerical(nf, ef types.Fact) *types.ConflictResult {
	if nf.Unit != ef.Unit {
		return nil
	}

	smaller := math.Min(math.Abs(nf.Value), math.Abs(ef.Value))
	relDiff := math.Abs(nf.Value-ef.Value) / math.Max(smaller, 1)
	if relDiff <= numericalConflictThreshold {
		return nil
	}

	severity := types.SeverityMedium
	if relDiff > numericalSevereThreshold {
		severity = types.SeverityHigh
	}

	return &types.ConflictResult{
		HasConflict:    true,
		ConflictType:   types.ConflictValueMismatch,
		Severity:       severity,
		Description:    fmt.Sprintf("values differ by %.0f%%: %v%s vs %v%s", relDiff*100, nf.Value, nf.Unit, ef.Value, ef.Unit),
		NewOrigin:      nf.Origin(),
		ExistingOrigin: ef.Origin(),
		Confidence:     math.Min(nf.Confidence, ef.Confidence),
		SuggestedResolution: fmt.Sprintf("re-measure the %s quantity and keep the better-evidenced value", nf.Unit),
	}
}

// compareBoolean flags opposite truth values for the same predicate token.
func compareBoolean(nf, ef types.Fact) *types.ConflictResult {
	if nf.Token != ef.Token || nf.BoolValue == ef.BoolValue {
		return nil
	}
	return &types.ConflictResult{
		HasConflict:    true,
		ConflictType:   types.ConflictFactualContradiction,
		Severity:       types.SeverityHigh,
		Description:    fmt.Sprintf("boolean predicate %q asserted as both %v and %v", nf.Token, nf.BoolValue, ef.BoolValue),
		NewOrigin:      nf.Origin(),
		ExistingOrigin: ef.Origin(),
		Confidence:     math.Min(nf.Confidence, ef.Confidence),
		SuggestedResolution: fmt.Sprintf("verify whether %q currently holds", nf.Token),
	}
}

// compareTemporal flags paired opposite temporal tokens across the two facts.
func compareTemporal(nf, ef types.Fact) *types.ConflictResult {
	for _, pair := range temporalOpposites {
		hit := (strings.Contains(nf.Token, pair[0]) && strings.Contains(ef.Token, pair[1])) ||
			(strings.Contains(nf.Token, pair[1]) && strings.Contains(ef.Token, pair[0]))
		if !hit {
			continue
		}
		return &types.ConflictResult{
			HasConflict:    true,
			ConflictType:   types.ConflictTemporalInconsistency,
			Severity:       types.SeverityMedium,
			Description:    fmt.Sprintf("temporal tokens %q and %q are mutually exclusive", nf.Token, ef.Token),
			NewOrigin:      nf.Origin(),
			ExistingOrigin: ef.Origin(),
			Confidence:     temporalConflictConfidence,
			SuggestedResolution: "establish the actual ordering of the two references",
		}
	}
	return nil
}

// compareStatement flags (a) a negation-pattern pair across the statements,
// or (b) substantial shared vocabulary with mismatched negation presence.
func compareStatement(nf, ef types.Fact) *types.ConflictResult {
	if negationPairMatch(nf.Text, ef.Text) {
		return &types.ConflictResult{
			HasConflict:    true,
			ConflictType:   types.ConflictFactualContradiction,
			Severity:       types.SeverityHigh,
			Description:    fmt.Sprintf("statements assert a predicate and its negation: %q vs %q", nf.Text, ef.Text),
			NewOrigin:      nf.Origin(),
			ExistingOrigin: ef.Origin(),
			Confidence:     statementNegationConfidence,
			SuggestedResolution: "gather direct evidence for the disputed predicate",
		}
	}

	shared := sharedTokenCount(nf.Text, ef.Text)
	if shared > statementOverlapMinTokens && containsNegation(nf.Text) != containsNegation(ef.Text) {
		return &types.ConflictResult{
			HasConflict:    true,
			ConflictType:   types.ConflictFactualContradiction,
			Severity:       types.SeverityMedium,
			Description:    fmt.Sprintf("statements share %d tokens but differ in negation: %q vs %q", shared, nf.Text, ef.Text),
			NewOrigin:      nf.Origin(),
			ExistingOrigin: ef.Origin(),
			Confidence:     statementOverlapConfidence,
			SuggestedResolution: "restate both claims and confirm which negation is intended",
		}
	}
	return nil
}

// negationPairMatch reports whether one statement contains "is X" and the
// other "is not X" (or the cannot/can pair) for the same predicate.
func negationPairMatch(a, b string) bool {
	return directedNegationMatch(a, b) || directedNegationMatch(b, a)
}

func directedNegationMatch(pos, neg string) bool {
	for _, copula := range []string{"is ", "are ", "was ", "were "} {
		idx := strings.Index(neg, copula+"not ")
		if idx < 0 {
			continue
		}
		predicate := firstToken(neg[idx+len(copula)+len("not "):])
		if predicate == "" {
			continue
		}
		if strings.Contains(pos, copula+predicate) && !strings.Contains(pos, copula+"not "+predicate) {
			return true
		}
	}
	if idx := strings.Index(neg, "cannot "); idx >= 0 {
		predicate := firstToken(neg[idx+len("cannot "):])
		if predicate != "" && strings.Contains(pos, "can "+predicate) {
			return true
		}
	}
	return false
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,;:!?")
}

func sharedTokenCount(a, b string) int {
	seen := map[string]bool{}
	for _, tok := range strings.Fields(a) {
		seen[strings.Trim(tok, ".,;:!?")] = true
	}
	count := 0
	counted := map[string]bool{}
	for _, tok := range strings.Fields(b) {
		tok = strings.Trim(tok, ".,;:!?")
		if seen[tok] && !counted[tok] && !negationWords[tok] {
			counted[tok] = true
			count++
		}
	}
	return count
}

func containsNegation(s string) bool {
	for _, tok := range strings.Fields(s) {
		if negationWords[strings.Trim(tok, ".,;:!?")] {
			return true
		}
	}
	return false
}
