package coherence

import (
	"context"
	"fmt"
	"strings"

	"storyloom/internal/logging"
)

// Narrator produces a short first-person reflection for a content summary.
// Implementations may call out to a text-generation service; failures fall
// back to a deterministic template and never block the pipeline.
type Narrator interface {
	Reflect(ctx context.Context, summary string) (string, error)
}

// Publisher emits fire-and-forget notifications after a successful event
// append. Publish failures are logged, never propagated.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

// Services bundles the optional collaborators of the coherence engine.
// Absent collaborators are represented by no-op implementations so call
// sites never branch on availability.
type Services struct {
	Narrator  Narrator
	Publisher Publisher
}

// NopServices returns a Services value with no-op collaborators.
func NopServices() Services {
	return Services{
		Narrator:  nopNarrator{},
		Publisher: nopPublisher{},
	}
}

// normalized fills in no-op substitutes for nil collaborators.
func (s Services) normalized() Services {
	if s.Narrator == nil {
		s.Narrator = nopNarrator{}
	}
	if s.Publisher == nil {
		s.Publisher = nopPublisher{}
	}
	return s
}

type nopNarrator struct{}

func (nopNarrator) Reflect(_ context.Context, summary string) (string, error) {
	return templateReflection(summary), nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, map[string]any) error { return nil }

// templateReflection is the deterministic fallback reflection used whenever
// the narrator is absent or fails.
func templateReflection(summary string) string {
	summary = strings.TrimSpace(summary)
	if len(summary) > 140 {
		summary = summary[:140]
	}
	return fmt.Sprintf("Reflecting on my story, I note: %s", summary)
}

// reflect asks the narrator for a reflection, falling back to the template
// on failure.
func (s Services) reflect(ctx context.Context, summary string) string {
	text, err := s.Narrator.Reflect(ctx, summary)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			logging.Get(logging.CategoryStory).Warn("narrator failed, using template: %v", err)
		}
		return templateReflection(summary)
	}
	return text
}

// publish emits a notification and logs failures without propagating them.
func (s Services) publish(ctx context.Context, topic string, payload map[string]any) {
	if err := s.Publisher.Publish(ctx, topic, payload); err != nil {
		logging.Get(logging.CategoryStory).Warn("publish %s failed: %v", topic, err)
	}
}
