package trend

import (
	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/stats"
)

// Effectiveness classifies how much a pair's members improved.
type Effectiveness string

const (
	Effective        Effectiveness = "effective"
	Neutral          Effectiveness = "neutral"
	Ineffective      Effectiveness = "ineffective"
	InsufficientData Effectiveness = "insufficient_data"
)

const (
	effectiveImprovement = 5.0
	mentoringImprovement = 5.0

	mentoringEffective      = "effective"
	mentoringNeedsAttention = "needs_attention"
)

// MemberChange is one pair member's change between sessions. Matched is
// false when the member is missing from either session.
type MemberChange struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Role                  model.Category `json:"role,omitempty"`
	PreviousMarks         float64        `json:"previousMarks"`
	CurrentMarks          float64        `json:"currentMarks"`
	Improvement           float64        `json:"improvement"`
	ImprovementPercentage Percentage     `json:"improvementPercentage"`
	Matched               bool           `json:"matched"`
}

// PairEffectiveness is the analysis of one historical pair.
type PairEffectiveness struct {
	PairID             string         `json:"pairId"`
	PairType           model.PairType `json:"pairType"`
	Students           []MemberChange `json:"students"`
	OverallImprovement float64        `json:"overallImprovement"`
	Effectiveness      Effectiveness  `json:"effectiveness"`

	// Set for high-low pairs only.
	WeakerStudentImprovement *float64 `json:"weakerStudentImprovement,omitempty"`
	StrongerStudentChange    *float64 `json:"strongerStudentChange,omitempty"`
	MentoringEffectiveness   string   `json:"mentoringEffectiveness,omitempty"`
}

// PairSummary counts the outcomes of a PairAnalysis.
type PairSummary struct {
	TotalPairs             int     `json:"totalPairs"`
	EffectivePairs         int     `json:"effectivePairs"`
	IneffectivePairs       int     `json:"ineffectivePairs"`
	AveragePairImprovement float64 `json:"averagePairImprovement"`
	HighLowPairsEffective  int     `json:"highLowPairsEffective"`
}

// PairAnalysis is the result of AnalyzePairs.
type PairAnalysis struct {
	Pairs   []PairEffectiveness `json:"pairAnalysis"`
	Summary PairSummary         `json:"summary"`
}

// AnalyzePairs measures how the members of each historical pair changed
// between previous and current.
func AnalyzePairs(previous, current model.PerformanceSession, history []model.Pair) PairAnalysis {
	a := PairAnalysis{Pairs: make([]PairEffectiveness, 0, len(history))}

	var overall []float64
	for _, p := range history {
		pe := analyzePair(previous, current, p)
		a.Pairs = append(a.Pairs, pe)

		switch pe.Effectiveness {
		case Effective:
			a.Summary.EffectivePairs++
		case Ineffective:
			a.Summary.IneffectivePairs++
		}
		if pe.Effectiveness != InsufficientData {
			overall = append(overall, pe.OverallImprovement)
		}
		if pe.PairType == model.PairHighLow && pe.MentoringEffectiveness == mentoringEffective {
			a.Summary.HighLowPairsEffective++
		}
	}

	a.Summary.TotalPairs = len(a.Pairs)
	a.Summary.AveragePairImprovement = stats.Round2(stats.Mean(overall))
	return a
}

func analyzePair(previous, current model.PerformanceSession, p model.Pair) PairEffectiveness {
	pe := PairEffectiveness{
		PairID:   p.ID,
		PairType: p.Type,
		Students: make([]MemberChange, 0, len(p.Students)),
	}

	var improvements []float64
	for _, s := range p.Students {
		mc := MemberChange{ID: s.ID, Name: s.Name, Role: s.Category}
		prev, okPrev := findMatch(previous.Students, s)
		cur, okCur := findMatch(current.Students, s)
		if okPrev && okCur {
			mc.Matched = true
			mc.PreviousMarks = prev.Marks
			mc.CurrentMarks = cur.Marks
			mc.Improvement = cur.Marks - prev.Marks
			mc.ImprovementPercentage = percentOf(mc.Improvement, prev.Marks)
			improvements = append(improvements, mc.Improvement)
		}
		pe.Students = append(pe.Students, mc)
	}

	if len(improvements) == 0 {
		pe.Effectiveness = InsufficientData
	} else {
		pe.OverallImprovement = stats.Mean(improvements)
		pe.Effectiveness = classifyPair(pe.OverallImprovement)
	}

	if p.Type == model.PairHighLow {
		weaker := roleImprovement(pe.Students, model.CategoryLow)
		stronger := roleImprovement(pe.Students, model.CategoryHigh)
		pe.WeakerStudentImprovement = &weaker
		pe.StrongerStudentChange = &stronger
		pe.MentoringEffectiveness = mentoringNeedsAttention
		if weaker > mentoringImprovement {
			pe.MentoringEffectiveness = mentoringEffective
		}
	}
	return pe
}

func classifyPair(improvement float64) Effectiveness {
	switch {
	case improvement >= effectiveImprovement:
		return Effective
	case improvement >= 0:
		return Neutral
	default:
		return Ineffective
	}
}

// roleImprovement returns the improvement of the first matched member with
// the given role, or 0.
func roleImprovement(members []MemberChange, role model.Category) float64 {
	for _, m := range members {
		if m.Role == role && m.Matched {
			return m.Improvement
		}
	}
	return 0
}
