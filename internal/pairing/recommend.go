package pairing

import "fmt"

const (
	mentoringGap     = 20.0
	collaborativeGap = 5.0
	challengeAverage = 80.0
	supportAverage   = 50.0
)

// Recommend returns advisory text for a pair from its score gap and average.
func Recommend(scoreGap, averageScore float64) string {
	switch {
	case scoreGap > mentoringGap:
		return fmt.Sprintf("High score gap (%g points) - Strong mentoring opportunity. Higher scorer should guide lower scorer.", scoreGap)
	case scoreGap < collaborativeGap:
		return "Similar performance levels - Focus on collaborative problem-solving and peer review."
	case averageScore > challengeAverage:
		return "High-performing pair - Challenge them with advanced problems and peer teaching roles."
	case averageScore < supportAverage:
		return "Both students need support - Consider additional teacher guidance alongside peer learning."
	default:
		return "Balanced pairing - Encourage mutual support and knowledge sharing."
	}
}
