package trend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/stats"
)

// ImprovementCategory buckets a student's percentage change.
type ImprovementCategory string

const (
	SignificantImprovement ImprovementCategory = "significant_improvement"
	GoodImprovement        ImprovementCategory = "good_improvement"
	SlightImprovement      ImprovementCategory = "slight_improvement"
	NoChange               ImprovementCategory = "no_change"
	SlightDecline          ImprovementCategory = "slight_decline"
	ConcerningDecline      ImprovementCategory = "concerning_decline"
	SignificantDecline     ImprovementCategory = "significant_decline"
)

const (
	significantPercent = 10.0
	undefinedPercent   = "undefined"
)

// Percentage is a change relative to a baseline. It is undefined when the
// baseline is zero and serializes as a two-decimal string or "undefined".
type Percentage struct {
	value   float64
	defined bool
}

func percentOf(change, base float64) Percentage {
	if base == 0 {
		return Percentage{}
	}
	return Percentage{value: change / base * 100, defined: true}
}

// Value returns the percentage and whether it is defined.
func (p Percentage) Value() (float64, bool) {
	return p.value, p.defined
}

func (p Percentage) String() string {
	if !p.defined {
		return undefinedPercent
	}
	return strconv.FormatFloat(p.value, 'f', 2, 64)
}

func (p Percentage) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Percentage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == undefinedPercent {
		*p = Percentage{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("percentage %q: %w", s, err)
	}
	*p = Percentage{value: v, defined: true}
	return nil
}

// StudentComparison is one student's change between two sessions.
type StudentComparison struct {
	StudentID             string              `json:"studentId"`
	StudentName           string              `json:"studentName"`
	PreviousMarks         float64             `json:"previousMarks"`
	CurrentMarks          float64             `json:"currentMarks"`
	Improvement           float64             `json:"improvement"`
	ImprovementPercentage Percentage          `json:"improvementPercentage"`
	Category              ImprovementCategory `json:"category"`
	PreviousSession       string              `json:"previousSession"`
	CurrentSession        string              `json:"currentSession"`
}

// ComparisonSummary counts the students of a Comparison. The significant
// counts use a 10% threshold; a change from a zero baseline always counts.
type ComparisonSummary struct {
	TotalStudents           int     `json:"totalStudents"`
	StudentsImproved        int     `json:"studentsImproved"`
	StudentsDeclined        int     `json:"studentsDeclined"`
	StudentsNoChange        int     `json:"studentsNoChange"`
	AverageImprovement      float64 `json:"averageImprovement"`
	SignificantImprovements int     `json:"significantImprovements"`
	SignificantDeclines     int     `json:"significantDeclines"`
}

// Comparison is the result of Compare. Improvements, Declines and NoChange
// split Comparisons by the sign of the raw improvement.
type Comparison struct {
	Comparisons  []StudentComparison `json:"comparisons"`
	Improvements []StudentComparison `json:"improvements"`
	Declines     []StudentComparison `json:"declines"`
	NoChange     []StudentComparison `json:"noChange"`
	Summary      ComparisonSummary   `json:"summary"`
}

// Compare matches every current student against the previous session and
// reports the change. Students without a previous match are skipped.
func Compare(previous, current model.PerformanceSession) Comparison {
	c := Comparison{
		Comparisons:  []StudentComparison{},
		Improvements: []StudentComparison{},
		Declines:     []StudentComparison{},
		NoChange:     []StudentComparison{},
	}

	var improvements []float64
	for _, cur := range current.Students {
		prev, ok := findMatch(previous.Students, cur)
		if !ok {
			continue
		}
		change := cur.Marks - prev.Marks
		pct := percentOf(change, prev.Marks)
		sc := StudentComparison{
			StudentID:             cur.ID,
			StudentName:           cur.Name,
			PreviousMarks:         prev.Marks,
			CurrentMarks:          cur.Marks,
			Improvement:           change,
			ImprovementPercentage: pct,
			Category:              categorizeImprovement(change, pct),
			PreviousSession:       previous.ID,
			CurrentSession:        current.ID,
		}
		c.Comparisons = append(c.Comparisons, sc)
		improvements = append(improvements, change)

		// A move away from a zero baseline counts as significant, as its
		// category does.
		v, defined := pct.Value()
		switch {
		case change > 0:
			c.Improvements = append(c.Improvements, sc)
			if !defined || v >= significantPercent {
				c.Summary.SignificantImprovements++
			}
		case change < 0:
			c.Declines = append(c.Declines, sc)
			if !defined || v <= -significantPercent {
				c.Summary.SignificantDeclines++
			}
		default:
			c.NoChange = append(c.NoChange, sc)
		}
	}

	c.Summary.TotalStudents = len(c.Comparisons)
	c.Summary.StudentsImproved = len(c.Improvements)
	c.Summary.StudentsDeclined = len(c.Declines)
	c.Summary.StudentsNoChange = len(c.NoChange)
	c.Summary.AverageImprovement = stats.Round2(stats.Mean(improvements))
	return c
}

// categorizeImprovement uses the percentage bands; an undefined percentage
// is decided by the sign of the raw change.
func categorizeImprovement(change float64, pct Percentage) ImprovementCategory {
	v, defined := pct.Value()
	if !defined {
		switch {
		case change > 0:
			return SignificantImprovement
		case change < 0:
			return SignificantDecline
		default:
			return NoChange
		}
	}
	switch {
	case v >= 20:
		return SignificantImprovement
	case v >= 10:
		return GoodImprovement
	case v >= 5:
		return SlightImprovement
	case v >= -5:
		return NoChange
	case v >= -10:
		return SlightDecline
	case v >= -20:
		return ConcerningDecline
	default:
		return SignificantDecline
	}
}

// findMatch looks a student up by id (or the id it had when the session was
// created), then by case-insensitive trimmed name.
func findMatch(students []model.Student, target model.Student) (model.Student, bool) {
	for _, s := range students {
		if s.ID == target.ID || (s.OriginalID != "" && s.OriginalID == target.ID) {
			return s, true
		}
	}
	name := normalizeName(target.Name)
	if name == "" {
		return model.Student{}, false
	}
	for _, s := range students {
		if normalizeName(s.Name) == name {
			return s, true
		}
	}
	return model.Student{}, false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
