// Package stats computes descriptive statistics over score lists.
package stats

import (
	"errors"
	"fmt"
	"math"

	mstats "github.com/montanaflynn/stats"

	"github.com/pavelanni/pairwise/internal/model"
)

// ErrInvalidInput is returned when statistics are requested for an empty list.
var ErrInvalidInput = errors.New("statistics require at least one value")

// Summarize returns min, max, mean, median, population standard deviation
// and range of values.
func Summarize(values []float64) (model.StatSummary, error) {
	if len(values) == 0 {
		return model.StatSummary{}, ErrInvalidInput
	}
	data := mstats.Float64Data(values)

	mean, err := mstats.Mean(data)
	if err != nil {
		return model.StatSummary{}, fmt.Errorf("mean: %w", err)
	}
	median, err := mstats.Median(data)
	if err != nil {
		return model.StatSummary{}, fmt.Errorf("median: %w", err)
	}
	stdDev, err := mstats.StandardDeviationPopulation(data)
	if err != nil {
		return model.StatSummary{}, fmt.Errorf("standard deviation: %w", err)
	}
	lo, err := mstats.Min(data)
	if err != nil {
		return model.StatSummary{}, fmt.Errorf("min: %w", err)
	}
	hi, err := mstats.Max(data)
	if err != nil {
		return model.StatSummary{}, fmt.Errorf("max: %w", err)
	}

	return model.StatSummary{
		Min:     lo,
		Max:     hi,
		Average: mean,
		Median:  median,
		StdDev:  stdDev,
		Range:   hi - lo,
	}, nil
}

// Marks extracts the score list of a roster in order.
func Marks(students []model.Student) []float64 {
	out := make([]float64, len(students))
	for i, s := range students {
		out[i] = s.Marks
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty list.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Round2 rounds x to two decimal places, halves away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
