// Package pairing groups a roster of scored students into peer-learning
// pairs. Rule-based strategies are deterministic apart from shuffling; the
// ai strategy delegates to a Collaborator and falls back to a rank-based
// algorithm when the collaborator fails.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/stats"
)

var (
	// ErrInsufficientRoster is returned when fewer than two students are given.
	ErrInsufficientRoster = errors.New("at least 2 students required for pairing")
	// ErrDuplicateStudent is returned when a roster repeats a student id.
	ErrDuplicateStudent = errors.New("duplicate student id in roster")
	// ErrPairNotFound is returned when an edit targets an unknown pair id.
	ErrPairNotFound = errors.New("pair not found")
	// ErrPairTooSmall is returned when an edit leaves fewer than two students in a pair.
	ErrPairTooSmall = errors.New("a pair needs at least 2 students")
	// ErrEditBreaksPartition is returned when an edit would place a student in
	// two pairs, add a student from outside the pairing or drop a member.
	ErrEditBreaksPartition = errors.New("edit must keep every student in exactly one pair")
)

const (
	defaultAITimeout   = 30 * time.Second
	regenerationReason = "Teacher requested different pairing approach"
)

// Options controls a single pairing run.
type Options struct {
	Strategy           model.Strategy                  `json:"strategy"`
	AdditionalFactors  map[string]model.StudentFactors `json:"additionalFactors,omitempty"`
	ClassContext       model.ClassContext              `json:"classContext"`
	TeacherPreferences model.TeacherPreferences        `json:"teacherPreferences"`
	PairingGoals       []string                        `json:"pairingGoals,omitempty"`
	// CurrentStrategy is the strategy excluded by Regenerate.
	CurrentStrategy model.Strategy `json:"currentStrategy,omitempty"`
}

// Result is the outcome of Generate, Regenerate or EditPair.
type Result struct {
	Pairs      []model.Pair       `json:"pairs"`
	Stats      model.PairingStats `json:"stats"`
	AIMetadata *model.AIMetadata  `json:"aiMetadata,omitempty"`
}

// Engine dispatches rosters to pairing strategies and finalizes the pairs.
// It is safe for concurrent use.
type Engine struct {
	collaborator Collaborator
	aiTimeout    time.Duration
	now          func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRand makes shuffling and strategy rotation draw from r.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithAITimeout bounds the collaborator call.
func WithAITimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.aiTimeout = d
		}
	}
}

// WithClock overrides the time source used for AI metadata.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. A nil collaborator makes the ai strategy
// always use the fallback algorithm.
func NewEngine(c Collaborator, opts ...EngineOption) *Engine {
	e := &Engine{
		collaborator: c,
		aiTimeout:    defaultAITimeout,
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Generate partitions students into pairs using opts.Strategy. Unknown
// strategies are treated as optimal.
func (e *Engine) Generate(ctx context.Context, students []model.Student, opts Options) (*Result, error) {
	if len(students) < 2 {
		return nil, ErrInsufficientRoster
	}

	r, err := prepare(students)
	if err != nil {
		return nil, err
	}

	strategy, ok := e.strategies()[opts.Strategy]
	if !ok {
		strategy = optimalStrategy
	}
	out := strategy(ctx, r, opts)
	if !out.complete {
		out.pairs = absorbUnpaired(out.pairs, r.students)
	}

	pairs := make([]model.Pair, len(out.pairs))
	for i, p := range out.pairs {
		pairs[i] = finalize(fmt.Sprintf("%s%d", out.idPrefix, i+1), p)
	}

	res := &Result{
		Pairs: pairs,
		Stats: model.PairingStats{
			TotalStudents:    len(students),
			TotalPairs:       len(pairs),
			PerformanceStats: r.stats,
			PairingStrategy:  out.label,
			FallbackReason:   out.fallbackReason,
		},
		AIMetadata: out.aiMetadata,
	}
	if out.label == model.StrategyAI {
		res.Stats.AIMetrics = aiMetrics(pairs, out.aiMetadata)
	}
	return res, nil
}

// EditPair returns a copy of res in which pairID holds students. The edit
// may reorder the pair and change member names and marks, but the pair must
// keep exactly its current members. Only that pair's averageScore, scoreGap
// and recommendation are recomputed.
func (e *Engine) EditPair(res *Result, pairID string, students []model.Student) (*Result, error) {
	if len(students) < 2 {
		return nil, ErrPairTooSmall
	}
	idx := slices.IndexFunc(res.Pairs, func(p model.Pair) bool { return p.ID == pairID })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPairNotFound, pairID)
	}
	if err := checkEdit(res.Pairs, idx, students); err != nil {
		return nil, err
	}

	current := make(map[string]model.Student, len(res.Pairs[idx].Students))
	for _, s := range res.Pairs[idx].Students {
		current[s.ID] = s
	}

	out := *res
	out.Pairs = slices.Clone(res.Pairs)
	edited := out.Pairs[idx]
	edited.Students = make([]model.Student, len(students))
	for i, s := range students {
		edited.Students[i] = mergeSnapshot(current[s.ID], s)
	}
	edited.AverageScore, edited.ScoreGap = pairScores(edited.Students)
	edited.Recommendation = Recommend(edited.ScoreGap, edited.AverageScore)
	out.Pairs[idx] = edited
	return &out, nil
}

// checkEdit verifies that students is a permutation of the members of
// pairs[idx].
func checkEdit(pairs []model.Pair, idx int, students []model.Student) error {
	owner := make(map[string]string)
	for i, p := range pairs {
		if i == idx {
			continue
		}
		for _, s := range p.Students {
			owner[s.ID] = p.ID
		}
	}
	members := make(map[string]bool, len(pairs[idx].Students))
	for _, s := range pairs[idx].Students {
		members[s.ID] = true
	}

	seen := make(map[string]bool, len(students))
	for _, s := range students {
		switch {
		case seen[s.ID]:
			return fmt.Errorf("%w: %q is listed twice", ErrEditBreaksPartition, s.ID)
		case owner[s.ID] != "":
			return fmt.Errorf("%w: %q is already in %s", ErrEditBreaksPartition, s.ID, owner[s.ID])
		case !members[s.ID]:
			return fmt.Errorf("%w: %q is not in this pairing", ErrEditBreaksPartition, s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range pairs[idx].Students {
		if !seen[s.ID] {
			return fmt.Errorf("%w: %q would be left without a pair", ErrEditBreaksPartition, s.ID)
		}
	}
	return nil
}

// mergeSnapshot takes the edited fields from in and fills what the caller
// left empty from the current snapshot.
func mergeSnapshot(base, in model.Student) model.Student {
	out := in
	if out.Name == "" {
		out.Name = base.Name
	}
	if out.Category == "" {
		out.Category = base.Category
	}
	if out.Role == "" {
		out.Role = base.Role
	}
	if out.OriginalRow == 0 {
		out.OriginalRow = base.OriginalRow
	}
	if out.SessionID == "" {
		out.SessionID = base.SessionID
	}
	if out.OriginalID == "" {
		out.OriginalID = base.OriginalID
	}
	return out
}

// Regenerate produces a fresh pairing with a strategy other than
// opts.CurrentStrategy. Pairings present in currentPairs are passed to the
// AI collaborator as pairs to avoid; rule-based strategies do not honor
// that hint.
func (e *Engine) Regenerate(ctx context.Context, students []model.Student, currentPairs []model.Pair, opts Options) (*Result, error) {
	exclude := opts.CurrentStrategy
	if exclude == "" {
		exclude = model.StrategyOptimal
	}
	available := make([]model.Strategy, 0, len(model.Strategies))
	for _, s := range model.Strategies {
		if s != exclude {
			available = append(available, s)
		}
	}

	next := opts
	next.Strategy = available[e.intN(len(available))]
	next.TeacherPreferences.AvoidPairings = append(slices.Clone(opts.TeacherPreferences.AvoidPairings), PreviousPairings(currentPairs)...)
	next.TeacherPreferences.RegenerationReason = regenerationReason

	return e.Generate(ctx, students, next)
}

// PreviousPairings lists every two students grouped together in pairs,
// in both orders, formatted as "a-b".
func PreviousPairings(pairs []model.Pair) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range pairs {
		for i := 0; i < len(p.Students); i++ {
			for j := i + 1; j < len(p.Students); j++ {
				a, b := p.Students[i].ID, p.Students[j].ID
				for _, key := range []string{a + "-" + b, b + "-" + a} {
					if !seen[key] {
						seen[key] = true
						out = append(out, key)
					}
				}
			}
		}
	}
	return out
}

func prepare(students []model.Student) (roster, error) {
	seen := make(map[string]bool, len(students))
	for _, s := range students {
		if seen[s.ID] {
			return roster{}, fmt.Errorf("%w: %q", ErrDuplicateStudent, s.ID)
		}
		seen[s.ID] = true
	}

	sorted := sortByMarks(students)
	summary, err := stats.Summarize(stats.Marks(sorted))
	if err != nil {
		return roster{}, err
	}
	cats := Categorize(sorted, summary)

	byID := make(map[string]model.Student, len(students))
	for _, s := range cats.All() {
		byID[s.ID] = s
	}
	inOrder := make([]model.Student, len(students))
	sortedCat := make([]model.Student, len(sorted))
	for i, s := range students {
		inOrder[i] = byID[s.ID]
	}
	for i, s := range sorted {
		sortedCat[i] = byID[s.ID]
	}

	return roster{
		students:   inOrder,
		sorted:     sortedCat,
		categories: cats,
		stats:      summary,
	}, nil
}

// absorbUnpaired appends students missing from pairs to the last pair,
// retyping it as a group of three or an extended pair.
func absorbUnpaired(pairs []provisional, students []model.Student) []provisional {
	if len(pairs) == 0 {
		return pairs
	}
	placed := make(map[string]bool, len(students))
	for _, p := range pairs {
		for _, s := range p.students {
			placed[s.ID] = true
		}
	}
	var unpaired []model.Student
	for _, s := range students {
		if !placed[s.ID] {
			unpaired = append(unpaired, s)
		}
	}
	if len(unpaired) == 0 {
		return pairs
	}

	last := &pairs[len(pairs)-1]
	last.students = append(slices.Clone(last.students), unpaired...)
	if len(last.students) == 3 {
		last.pairType = model.PairGroupOf3
	} else {
		last.pairType = model.PairExtended
	}
	return pairs
}

func finalize(id string, p provisional) model.Pair {
	avg, gap := pairScores(p.students)
	rec := p.recommendation
	if rec == "" {
		rec = Recommend(gap, avg)
	}
	return model.Pair{
		ID:               id,
		Students:         p.students,
		Type:             p.pairType,
		AverageScore:     avg,
		ScoreGap:         gap,
		Recommendation:   rec,
		Rationale:        p.rationale,
		AIConfidence:     p.confidence,
		ExpectedOutcome:  p.expectedOutcome,
		TeachingStrategy: p.teachingStrategy,
	}
}

// pairScores returns the mean marks and max-min gap, both rounded to two
// decimals.
func pairScores(students []model.Student) (avg, gap float64) {
	if len(students) == 0 {
		return 0, 0
	}
	marks := stats.Marks(students)
	avg = stats.Round2(stats.Mean(marks))
	if len(marks) < 2 {
		return avg, 0
	}
	return avg, stats.Round2(slices.Max(marks) - slices.Min(marks))
}

func (e *Engine) shuffled(students []model.Student) []model.Student {
	out := slices.Clone(students)
	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if e.rng == nil {
		rand.Shuffle(len(out), swap)
		return out
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng.Shuffle(len(out), swap)
	return out
}

func (e *Engine) intN(n int) int {
	if e.rng == nil {
		return rand.IntN(n)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}
