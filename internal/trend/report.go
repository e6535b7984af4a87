package trend

import (
	"fmt"
	"time"

	"github.com/pavelanni/pairwise/internal/model"
)

// Trend is the direction of a student's raw change.
type Trend string

const (
	Upward   Trend = "upward"
	Downward Trend = "downward"
	Stable   Trend = "stable"
)

// RiskLevel flags students whose current marks or decline need attention.
type RiskLevel string

const (
	HighRisk       RiskLevel = "high_risk"
	ModerateRisk   RiskLevel = "moderate_risk"
	LowPerformance RiskLevel = "low_performance"
	NormalRisk     RiskLevel = "normal"
)

// Priority orders insights and recommendations for the teacher.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

const (
	trendThreshold = 5.0
	passingMarks   = 50.0
)

// StudentTrend is a comparison annotated with direction and risk.
type StudentTrend struct {
	StudentComparison
	Trend     Trend     `json:"trend"`
	RiskLevel RiskLevel `json:"riskLevel"`
}

// Insight is a one-line observation about the class.
type Insight struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

// Recommendation is an action for the teacher. Subjects holds student
// names for student_support and pair ids otherwise.
type Recommendation struct {
	Type        string   `json:"type"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Subjects    []string `json:"subjects"`
}

// Overview holds the headline numbers of a Report.
type Overview struct {
	SessionComparison ComparisonSummary `json:"sessionComparison"`
	PairEffectiveness PairSummary       `json:"pairEffectiveness"`
	GeneratedAt       time.Time         `json:"generatedAt"`
}

// Report is a trend report over two sessions and their pairing history.
type Report struct {
	Overview        Overview            `json:"overview"`
	StudentTrends   []StudentTrend      `json:"studentTrends"`
	PairTrends      []PairEffectiveness `json:"pairTrends"`
	Insights        []Insight           `json:"insights"`
	Recommendations []Recommendation    `json:"recommendations"`
}

// Analyze compares previous and current and evaluates the pairs in history.
func Analyze(previous, current model.PerformanceSession, history []model.Pair, now time.Time) Report {
	return BuildReport(Compare(previous, current), AnalyzePairs(previous, current, history), now)
}

// BuildReport combines a session comparison and a pair analysis.
func BuildReport(cmp Comparison, pairs PairAnalysis, now time.Time) Report {
	trends := make([]StudentTrend, 0, len(cmp.Comparisons))
	for _, c := range cmp.Comparisons {
		trends = append(trends, StudentTrend{
			StudentComparison: c,
			Trend:             trendDirection(c.Improvement),
			RiskLevel:         assessRisk(c),
		})
	}
	pairTrends := pairs.Pairs
	if pairTrends == nil {
		pairTrends = []PairEffectiveness{}
	}

	return Report{
		Overview: Overview{
			SessionComparison: cmp.Summary,
			PairEffectiveness: pairs.Summary,
			GeneratedAt:       now.UTC(),
		},
		StudentTrends:   trends,
		PairTrends:      pairTrends,
		Insights:        insights(cmp.Summary, pairs.Summary),
		Recommendations: recommendations(cmp, pairs),
	}
}

func trendDirection(improvement float64) Trend {
	switch {
	case improvement > trendThreshold:
		return Upward
	case improvement < -trendThreshold:
		return Downward
	default:
		return Stable
	}
}

// assessRisk skips the percentage rules when the percentage is undefined.
func assessRisk(c StudentComparison) RiskLevel {
	if v, ok := c.ImprovementPercentage.Value(); ok {
		switch {
		case v <= -20:
			return HighRisk
		case v <= -10:
			return ModerateRisk
		}
	}
	if c.CurrentMarks < passingMarks {
		return LowPerformance
	}
	return NormalRisk
}

func insights(s ComparisonSummary, p PairSummary) []Insight {
	out := []Insight{}
	switch {
	case s.StudentsImproved > s.StudentsDeclined:
		out = append(out, Insight{
			Type:     "positive",
			Message:  fmt.Sprintf("More students improved (%d) than declined (%d)", s.StudentsImproved, s.StudentsDeclined),
			Priority: PriorityMedium,
		})
	case s.StudentsDeclined > s.StudentsImproved:
		out = append(out, Insight{
			Type:     "concerning",
			Message:  fmt.Sprintf("More students declined (%d) than improved (%d)", s.StudentsDeclined, s.StudentsImproved),
			Priority: PriorityHigh,
		})
	}

	if s.SignificantImprovements > 0 {
		out = append(out, Insight{
			Type:     "positive",
			Message:  fmt.Sprintf("%d student(s) showed significant improvement (≥10%%)", s.SignificantImprovements),
			Priority: PriorityLow,
		})
	}

	if p.EffectivePairs > p.IneffectivePairs {
		out = append(out, Insight{
			Type:     "positive",
			Message:  fmt.Sprintf("Most pairs (%d/%d) are showing positive results", p.EffectivePairs, p.TotalPairs),
			Priority: PriorityMedium,
		})
	}
	return out
}

func recommendations(cmp Comparison, pairs PairAnalysis) []Recommendation {
	out := []Recommendation{}

	var struggling []string
	for _, c := range cmp.Comparisons {
		if c.Category == ConcerningDecline || c.Category == SignificantDecline {
			struggling = append(struggling, c.StudentName)
		}
	}
	if len(struggling) > 0 {
		out = append(out, Recommendation{
			Type:        "student_support",
			Priority:    PriorityHigh,
			Title:       "Students Need Additional Support",
			Description: fmt.Sprintf("%d student(s) showing concerning decline", len(struggling)),
			Action:      "Consider additional tutoring or different pairing strategies",
			Subjects:    struggling,
		})
	}

	var ineffective, effective []string
	for _, p := range pairs.Pairs {
		switch p.Effectiveness {
		case Ineffective:
			ineffective = append(ineffective, p.PairID)
		case Effective:
			effective = append(effective, p.PairID)
		}
	}
	if len(ineffective) > 0 {
		out = append(out, Recommendation{
			Type:        "pair_adjustment",
			Priority:    PriorityMedium,
			Title:       "Consider Re-pairing Students",
			Description: fmt.Sprintf("%d pair(s) not showing expected improvement", len(ineffective)),
			Action:      "Review and potentially reassign these pairs",
			Subjects:    ineffective,
		})
	}
	if len(effective) > 0 {
		out = append(out, Recommendation{
			Type:        "maintain_success",
			Priority:    PriorityLow,
			Title:       "Continue Successful Pairs",
			Description: fmt.Sprintf("%d pair(s) showing excellent results", len(effective)),
			Action:      "Maintain these pairings and use as models for other pairs",
			Subjects:    effective,
		})
	}
	return out
}
