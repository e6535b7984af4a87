package pairing

import (
	"cmp"
	"slices"

	"github.com/pavelanni/pairwise/internal/model"
)

// categoryBand is the fraction of a standard deviation around the mean
// that still counts as medium.
const categoryBand = 0.5

// Categories partitions a roster into performance bands. Each band keeps
// the ascending order of the input.
type Categories struct {
	Low    []model.Student
	Medium []model.Student
	High   []model.Student
}

// All returns low, medium and high students concatenated.
func (c Categories) All() []model.Student {
	out := make([]model.Student, 0, len(c.Low)+len(c.Medium)+len(c.High))
	out = append(out, c.Low...)
	out = append(out, c.Medium...)
	return append(out, c.High...)
}

// Categorize labels every student low, medium or high relative to the
// roster's mean and standard deviation. Boundary values are medium.
func Categorize(sorted []model.Student, s model.StatSummary) Categories {
	lowCut := s.Average - categoryBand*s.StdDev
	highCut := s.Average + categoryBand*s.StdDev

	var c Categories
	for _, st := range sorted {
		switch {
		case st.Marks < lowCut:
			st.Category = model.CategoryLow
			c.Low = append(c.Low, st)
		case st.Marks > highCut:
			st.Category = model.CategoryHigh
			c.High = append(c.High, st)
		default:
			st.Category = model.CategoryMedium
			c.Medium = append(c.Medium, st)
		}
	}
	return c
}

// sortByMarks returns an ascending copy of students. Equal marks keep
// their input order.
func sortByMarks(students []model.Student) []model.Student {
	sorted := slices.Clone(students)
	slices.SortStableFunc(sorted, func(a, b model.Student) int {
		return cmp.Compare(a.Marks, b.Marks)
	})
	return sorted
}
