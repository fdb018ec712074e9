package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/records"
)

const day = 24 * time.Hour

// SampleTokens returns the demo tokens, timestamped relative to now.
func SampleTokens(now time.Time) []model.Token {
	ago := func(d time.Duration) int64 { return now.Add(-d).UnixMilli() }
	return []model.Token{
		{
			ID:        "INF-SAMPLE-001",
			Query:     "What is quantum computing?",
			Content:   "Quantum computing harnesses the unique behavior of quantum physics to process information in fundamentally new ways. Unlike classical computers that use bits (0 or 1), quantum computers use qubits that can exist in multiple states simultaneously through superposition. This enables them to solve certain problems exponentially faster than classical computers.",
			Timestamp: ago(5 * day),
			Promoted:  true,
			PageID:    "PAGE-SAMPLE-001",
			PageIDs:   []string{"PAGE-SAMPLE-001"},
			Analytics: &model.TokenAnalytics{Promotions: 1},
		},
		{
			ID:        "INF-SAMPLE-002",
			Query:     "Best practices for React hooks",
			Content:   "React hooks provide a way to use state and lifecycle features in functional components. Key best practices include: always call hooks at the top level, use the dependency array correctly in useEffect, create custom hooks for reusable logic, and use useCallback/useMemo for performance optimization when needed.",
			Timestamp: ago(3 * day),
			Analytics: &model.TokenAnalytics{},
		},
		{
			ID:        "INF-SAMPLE-003",
			Query:     "History of artificial intelligence",
			Content:   "Artificial intelligence has evolved from symbolic AI in the 1950s to modern deep learning. Key milestones include the Dartmouth Conference (1956), expert systems in the 1980s, IBM Deep Blue defeating Kasparov (1997), and the deep learning revolution starting in 2012 with AlexNet.",
			Timestamp: ago(2 * day),
			Promoted:  true,
			PageID:    "PAGE-SAMPLE-002",
			PageIDs:   []string{"PAGE-SAMPLE-002"},
			Analytics: &model.TokenAnalytics{Promotions: 1},
		},
		{
			ID:        "INF-SAMPLE-004",
			Query:     "Climate change solutions",
			Content:   "Addressing climate change requires multiple approaches: transitioning to renewable energy, improving energy efficiency, protecting and restoring forests, advancing carbon capture technology, and implementing sustainable agriculture practices. Both technological innovation and policy changes are essential.",
			Timestamp: ago(day),
			Analytics: &model.TokenAnalytics{},
		},
	}
}

// SamplePages returns the demo pages linked to SampleTokens.
func SamplePages(now time.Time) []model.BuildPage {
	tokens := SampleTokens(now)
	quantum := model.NewPage(tokens[0], model.SearchResult{
		Content: tokens[0].Content,
		Tags:    []string{"quantum", "computing", "technology", "physics"},
	}, tokens[0].Query, model.StructureKnowledge, model.Features{Charts: true, Images: true}, now.Add(-5*day))
	quantum.ID = "PAGE-SAMPLE-001"

	history := model.NewPage(tokens[2], model.SearchResult{
		Content: tokens[2].Content,
		Tags:    []string{"AI", "history", "technology", "machine-learning"},
	}, tokens[2].Query, model.StructureBlank, model.Features{Navigation: true}, now.Add(-2*day))
	history.ID = "PAGE-SAMPLE-002"

	// Newest first, as the stores keep them.
	return []model.BuildPage{history, quantum}
}

// Seed writes the sample tokens and pages when both stores are empty. It
// reports whether anything was written.
func (w *Workflow) Seed(ctx context.Context) (bool, error) {
	seeded := false
	err := w.store.Update(ctx, func(ctx context.Context) ([]records.Change, error) {
		if len(w.store.Tokens.List(ctx)) > 0 || len(w.store.Pages.List(ctx)) > 0 {
			return nil, nil
		}
		now := w.now()

		// Stage head-inserts, so records go oldest first.
		tc, err := w.store.Tokens.Stage(ctx, SampleTokens(now)...)
		if err != nil {
			return nil, err
		}
		pages := SamplePages(now)
		pc, err := w.store.Pages.Stage(ctx, reverse(pages)...)
		if err != nil {
			return nil, err
		}
		seeded = true
		return []records.Change{tc, pc}, nil
	})
	if err != nil {
		return false, fmt.Errorf("seeding sample data: %w", err)
	}
	if seeded {
		w.logger.Info("sample data seeded")
	}
	return seeded, nil
}

func reverse[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
