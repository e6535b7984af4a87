package pairing

import (
	"context"

	"github.com/pavelanni/pairwise/internal/model"
)

// roster is the prepared input shared by all strategies.
type roster struct {
	students   []model.Student // input order, categorized snapshots
	sorted     []model.Student // ascending by marks, categorized snapshots
	categories Categories
	stats      model.StatSummary
}

// provisional is a pair before ids and metadata are assigned.
type provisional struct {
	pairType         model.PairType
	students         []model.Student
	rationale        string
	recommendation   string
	confidence       *float64
	expectedOutcome  string
	teachingStrategy string
}

// outcome is what a strategy hands back to the engine.
type outcome struct {
	pairs []provisional
	label model.Strategy
	// idPrefix is prepended to the sequential pair number.
	idPrefix string
	// complete is set by strategies that place every student themselves.
	complete       bool
	fallbackReason string
	aiMetadata     *model.AIMetadata
}

type strategyFunc func(ctx context.Context, r roster, opts Options) outcome

func (e *Engine) strategies() map[model.Strategy]strategyFunc {
	return map[model.Strategy]strategyFunc{
		model.StrategyOptimal:  optimalStrategy,
		model.StrategyBalanced: e.balancedStrategy,
		model.StrategyRandom:   e.randomStrategy,
		model.StrategyAI:       e.aiStrategy,
	}
}

// optimalStrategy pairs the weakest low performer with the strongest high
// performer until one band runs out, then pairs medium performers, then
// pairs whatever is left in band order.
func optimalStrategy(_ context.Context, r roster, _ Options) outcome {
	low := append([]model.Student(nil), r.categories.Low...)
	medium := append([]model.Student(nil), r.categories.Medium...)
	high := append([]model.Student(nil), r.categories.High...)

	var pairs []provisional
	for len(low) > 0 && len(high) > 0 {
		weak := low[0]
		strong := high[len(high)-1]
		low = low[1:]
		high = high[:len(high)-1]
		pairs = append(pairs, provisional{
			pairType:  model.PairHighLow,
			students:  []model.Student{weak, strong},
			rationale: "High performer mentors low performer",
		})
	}

	for len(medium) > 1 {
		pairs = append(pairs, provisional{
			pairType:  model.PairMediumMedium,
			students:  []model.Student{medium[0], medium[1]},
			rationale: "Similar level collaboration",
		})
		medium = medium[2:]
	}

	remaining := make([]model.Student, 0, len(low)+len(medium)+len(high))
	remaining = append(remaining, low...)
	remaining = append(remaining, medium...)
	remaining = append(remaining, high...)
	for len(remaining) > 1 {
		pairs = append(pairs, provisional{
			pairType:  model.PairMixed,
			students:  []model.Student{remaining[0], remaining[1]},
			rationale: "Mixed ability pairing",
		})
		remaining = remaining[2:]
	}

	return outcome{pairs: pairs, label: model.StrategyOptimal, idPrefix: "pair-"}
}

func (e *Engine) balancedStrategy(_ context.Context, r roster, _ Options) outcome {
	pairs := pairConsecutive(e.shuffled(r.categories.All()), model.PairBalanced, "Balanced random pairing")
	return outcome{pairs: pairs, label: model.StrategyBalanced, idPrefix: "pair-"}
}

// randomStrategy shares the balanced mechanics; only the intent differs.
func (e *Engine) randomStrategy(_ context.Context, r roster, _ Options) outcome {
	pairs := pairConsecutive(e.shuffled(r.sorted), model.PairRandom, "Random pairing")
	return outcome{pairs: pairs, label: model.StrategyRandom, idPrefix: "pair-"}
}

// pairConsecutive groups students two at a time. An odd last student is
// left for the engine to place.
func pairConsecutive(students []model.Student, t model.PairType, rationale string) []provisional {
	var pairs []provisional
	for i := 0; i+1 < len(students); i += 2 {
		pairs = append(pairs, provisional{
			pairType:  t,
			students:  []model.Student{students[i], students[i+1]},
			rationale: rationale,
		})
	}
	return pairs
}
