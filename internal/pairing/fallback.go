package pairing

import (
	"fmt"

	"github.com/pavelanni/pairwise/internal/model"
)

const fallbackRecommendation = "This is a fallback pairing. Consider configuring AI service for better results."

// fallbackPairs is used only when the AI collaborator fails. Unlike the
// optimal strategy it ignores categories: rank i is paired with rank n-1-i,
// and an odd middle student joins the last pair.
func fallbackPairs(sorted []model.Student) []provisional {
	n := len(sorted)
	pairs := make([]provisional, 0, n/2)
	for i := 0; i < n/2; i++ {
		weak := sorted[i]
		strong := sorted[n-1-i]
		pairs = append(pairs, provisional{
			pairType:       model.PairFallbackTutoring,
			students:       []model.Student{weak, strong},
			rationale:      fmt.Sprintf("Fallback pairing: %s (%g) mentors %s (%g)", strong.Name, strong.Marks, weak.Name, weak.Marks),
			recommendation: fallbackRecommendation,
		})
	}

	if n%2 == 1 && len(pairs) > 0 {
		last := &pairs[len(pairs)-1]
		last.students = append(last.students, sorted[n/2])
		last.pairType = model.PairFallbackGroup
	}
	return pairs
}

func fallbackOutcome(r roster, reason string) outcome {
	return outcome{
		pairs:          fallbackPairs(r.sorted),
		label:          model.StrategyFallback,
		idPrefix:       "fallback-pair-",
		complete:       true,
		fallbackReason: reason,
	}
}
