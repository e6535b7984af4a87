package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	appI18n "github.com/pavelanni/pairwise/internal/i18n"
	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/trend"
)

func num(x float64) string {
	return fmt.Sprintf("%.2f", x)
}

// renderPairing writes a pairing record as a human-readable listing.
func renderPairing(ctx context.Context, w io.Writer, rec model.PairingRecord) error {
	var b strings.Builder
	st := rec.Stats
	ps := st.PerformanceStats

	fmt.Fprintln(&b, appI18n.Td(ctx, "PairingHeader", map[string]any{"Strategy": st.PairingStrategy}))
	if st.FallbackReason != "" {
		fmt.Fprintln(&b, appI18n.Td(ctx, "FallbackNotice", map[string]any{"Reason": st.FallbackReason}))
	}
	fmt.Fprintf(&b, "%s, %s\n",
		appI18n.Tp(ctx, "StudentsCount", st.TotalStudents),
		appI18n.Tp(ctx, "PairsCount", st.TotalPairs))
	fmt.Fprintln(&b, appI18n.Td(ctx, "ClassStats", map[string]any{
		"Average": num(ps.Average),
		"Median":  num(ps.Median),
		"StdDev":  num(ps.StdDev),
		"Min":     num(ps.Min),
		"Max":     num(ps.Max),
	}))
	if st.AIMetrics != nil {
		if st.AIMetrics.OverallStrategy != "" {
			fmt.Fprintln(&b, appI18n.Td(ctx, "AIStrategy", map[string]any{"Strategy": st.AIMetrics.OverallStrategy}))
		}
		fmt.Fprintln(&b, appI18n.Td(ctx, "AIConfidence", map[string]any{"Confidence": num(st.AIMetrics.AverageConfidence)}))
	}

	for _, p := range rec.Pairs {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, appI18n.Td(ctx, "PairLine", map[string]any{
			"ID":      p.ID,
			"Type":    p.Type,
			"Average": num(p.AverageScore),
			"Gap":     num(p.ScoreGap),
		}))
		for _, s := range p.Students {
			tags := []string{num(s.Marks)}
			if s.Category != "" {
				tags = append(tags, string(s.Category))
			}
			if s.Role != "" {
				tags = append(tags, s.Role)
			}
			fmt.Fprintf(&b, "  - %s (%s)\n", s.Name, strings.Join(tags, ", "))
		}
		fmt.Fprintf(&b, "  %s\n", p.Recommendation)
	}

	if rec.AIMetadata != nil && len(rec.AIMetadata.Recommendations) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, appI18n.T(ctx, "RecommendationsHeader"))
		for _, r := range rec.AIMetadata.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderReport writes a trend report as a human-readable summary.
func renderReport(ctx context.Context, w io.Writer, prev, cur model.PerformanceSession, r trend.Report) error {
	var b strings.Builder
	sc := r.Overview.SessionComparison
	pe := r.Overview.PairEffectiveness

	fmt.Fprintln(&b, appI18n.Td(ctx, "TrendHeader", map[string]any{
		"Previous": prev.SessionName,
		"Current":  cur.SessionName,
	}))
	fmt.Fprintln(&b, appI18n.Td(ctx, "ComparisonSummary", map[string]any{
		"Total":    appI18n.Tp(ctx, "StudentsCount", sc.TotalStudents),
		"Improved": sc.StudentsImproved,
		"Declined": sc.StudentsDeclined,
		"NoChange": sc.StudentsNoChange,
		"Average":  num(sc.AverageImprovement),
	}))
	for _, st := range r.StudentTrends {
		fmt.Fprintf(&b, "  %s\n", appI18n.Td(ctx, "StudentTrendLine", map[string]any{
			"Name":     st.StudentName,
			"Previous": num(st.PreviousMarks),
			"Current":  num(st.CurrentMarks),
			"Percent":  st.ImprovementPercentage.String(),
			"Trend":    st.Trend,
			"Risk":     st.RiskLevel,
		}))
	}

	if pe.TotalPairs > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, appI18n.Td(ctx, "PairSummary", map[string]any{
			"Effective":   pe.EffectivePairs,
			"Ineffective": pe.IneffectivePairs,
			"Total":       appI18n.Tp(ctx, "PairsCount", pe.TotalPairs),
			"Average":     num(pe.AveragePairImprovement),
		}))
		for _, p := range r.PairTrends {
			fmt.Fprintf(&b, "  %s (%s): %s, %s\n", p.PairID, p.PairType, num(p.OverallImprovement), p.Effectiveness)
		}
	}

	if len(r.Insights) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, appI18n.T(ctx, "InsightsHeader"))
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "  [%s] %s\n", in.Priority, in.Message)
		}
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, appI18n.T(ctx, "RecommendationsHeader"))
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", rec.Priority, rec.Title, rec.Action)
			if len(rec.Subjects) > 0 {
				fmt.Fprintf(&b, "    %s\n", strings.Join(rec.Subjects, ", "))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
