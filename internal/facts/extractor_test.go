package facts

import (
	"testing"

	"storyloom/internal/types"
)

func eventWith(content string, et types.EventType) *types.StoryEvent {
	return &types.StoryEvent{
		ID:         "evt-1",
		AgentID:    "agent-1",
		EventType:  et,
		Content:    content,
		Confidence: 0.8,
	}
}

func factsOfType(all []types.Fact, ft types.FactType) []types.Fact {
	var out []types.Fact
	for _, f := range all {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

func TestExtractNumericalWithUnit(t *testing.T) {
	ex := NewLexicalExtractor()
	got := ex.FromEvent(eventWith("average response time is 100ms under load", types.EventActionTaken))

	nums := factsOfType(got, types.FactNumerical)
	if len(nums) != 1 {
		t.Fatalf("expected 1 numerical fact, got %d: %+v", len(nums), nums)
	}
	if nums[0].Value != 100 || nums[0].Unit != "ms" {
		t.Errorf("got value=%v unit=%q, want 100 ms", nums[0].Value, nums[0].Unit)
	}
	if nums[0].OriginID != "evt-1" {
		t.Errorf("provenance lost: origin %q", nums[0].OriginID)
	}
	if nums[0].Confidence != 0.8 {
		t.Errorf("confidence not inherited: %v", nums[0].Confidence)
	}
}

func TestExtractUnitNormalization(t *testing.T) {
	ex := NewLexicalExtractor()
	a := ex.FromEvent(eventWith("took 5 seconds", types.EventActionTaken))
	b := ex.FromEvent(eventWith("took 7 secs", types.EventActionTaken))

	na, nb := factsOfType(a, types.FactNumerical), factsOfType(b, types.FactNumerical)
	if len(na) != 1 || len(nb) != 1 {
		t.Fatalf("expected one numerical fact each, got %d and %d", len(na), len(nb))
	}
	if na[0].Unit != nb[0].Unit {
		t.Errorf("units should normalize to a common spelling: %q vs %q", na[0].Unit, nb[0].Unit)
	}
}

func TestExtractCurrency(t *testing.T) {
	ex := NewLexicalExtractor()
	got := ex.FromEvent(eventWith("the license costs $49.99 per year", types.EventEvidenceReceived))

	nums := factsOfType(got, types.FactNumerical)
	if len(nums) == 0 {
		t.Fatal("expected a currency fact")
	}
	if nums[0].Value != 49.99 || nums[0].Unit != "usd" {
		t.Errorf("got value=%v unit=%q, want 49.99 usd", nums[0].Value, nums[0].Unit)
	}
}

func TestExtractBooleanNegation(t *testing.T) {
	ex := NewLexicalExtractor()

	pos := factsOfType(ex.FromEvent(eventWith("the service is active", types.EventBeliefFormed)), types.FactBoolean)
	neg := factsOfType(ex.FromEvent(eventWith("the service is not active", types.EventBeliefFormed)), types.FactBoolean)

	if len(pos) == 0 || len(neg) == 0 {
		t.Fatal("expected boolean facts on both sides")
	}
	if !pos[0].BoolValue {
		t.Error("positive modal should yield true")
	}
	if neg[len(neg)-1].BoolValue {
		t.Error("negated modal should yield false")
	}
}

func TestExtractAbility(t *testing.T) {
	ex := NewLexicalExtractor()
	got := factsOfType(ex.FromEvent(eventWith("the agent cannot deploy on fridays", types.EventBeliefFormed)), types.FactBoolean)
	if len(got) == 0 {
		t.Fatal("expected an ability fact")
	}
	if got[0].BoolValue {
		t.Error("cannot should yield false")
	}
	if got[0].Token != "deploy" {
		t.Errorf("predicate token = %q, want deploy", got[0].Token)
	}
}

func TestExtractTemporalTokens(t *testing.T) {
	ex := NewLexicalExtractor()
	got := factsOfType(ex.FromEvent(eventWith("shipped yesterday at 9:30 am, demo on friday", types.EventActionTaken)), types.FactTemporal)

	tokens := map[string]bool{}
	for _, f := range got {
		tokens[f.Token] = true
	}
	for _, want := range []string{"yesterday", "friday"} {
		if !tokens[want] {
			t.Errorf("missing temporal token %q in %v", want, tokens)
		}
	}
}

func TestStatementFallbackForBeliefs(t *testing.T) {
	ex := NewLexicalExtractor()
	got := ex.FromEvent(eventWith("  The Sky Is Blue  ", types.EventBeliefFormed))

	stmts := factsOfType(got, types.FactStatement)
	if len(stmts) != 1 {
		t.Fatalf("belief events must always yield a statement fact, got %d", len(stmts))
	}
	if stmts[0].Text != "the sky is blue" {
		t.Errorf("statement should be lower-cased and trimmed, got %q", stmts[0].Text)
	}

	// Non-belief events do not get the unconditional statement fallback.
	action := ex.FromEvent(eventWith("walked north", types.EventActionTaken))
	if len(factsOfType(action, types.FactStatement)) != 0 {
		t.Error("action events should not yield statement facts")
	}
}

func TestFromObservation(t *testing.T) {
	ex := NewLexicalExtractor()
	got := ex.FromObservation(types.ObservationEntry{
		AgentID:    "agent-1",
		Key:        "response_time",
		Value:      "130ms",
		Confidence: 0.6,
	})

	nums := factsOfType(got, types.FactNumerical)
	if len(nums) != 1 || nums[0].Value != 130 || nums[0].Unit != "ms" {
		t.Fatalf("expected 130ms numerical fact, got %+v", nums)
	}
	if nums[0].OriginKey != "response_time" {
		t.Errorf("observation provenance lost: %q", nums[0].OriginKey)
	}
	if len(factsOfType(got, types.FactStatement)) != 1 {
		t.Error("observations must carry a statement fact unconditionally")
	}
}
