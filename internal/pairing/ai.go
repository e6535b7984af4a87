package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pavelanni/pairwise/internal/model"
)

// Collaborator proposes pairs for a roster. Implementations make a single
// outbound request; the engine bounds it with a timeout.
type Collaborator interface {
	PairStudents(ctx context.Context, req model.AIPairingRequest) (*model.AIPairingResponse, error)
}

const defaultPairingGoal = "peer_tutoring"

var errNoCollaborator = errors.New("AI collaborator not configured")

// aiStrategy asks the collaborator for pairs and falls back to the
// rank-mirroring algorithm on any failure.
func (e *Engine) aiStrategy(ctx context.Context, r roster, opts Options) outcome {
	pairs, meta, err := e.requestAIPairs(ctx, r, opts)
	if err != nil {
		slog.Warn("AI pairing failed, using fallback pairing", "error", err, "students", len(r.students))
		return fallbackOutcome(r, err.Error())
	}
	return outcome{
		pairs:      pairs,
		label:      model.StrategyAI,
		idPrefix:   "ai-pair-",
		complete:   true,
		aiMetadata: meta,
	}
}

func (e *Engine) requestAIPairs(ctx context.Context, r roster, opts Options) ([]provisional, *model.AIMetadata, error) {
	if e.collaborator == nil {
		return nil, nil, errNoCollaborator
	}

	ctx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()

	resp, err := e.collaborator.PairStudents(ctx, buildAIRequest(r, opts))
	if err != nil {
		return nil, nil, err
	}
	if resp == nil || len(resp.Pairs) == 0 {
		return nil, nil, errors.New("AI response contains no pairs")
	}

	pairs, err := mapAIPairs(resp.Pairs, r.students)
	if err != nil {
		return nil, nil, err
	}

	meta := &model.AIMetadata{
		OverallStrategy: resp.OverallStrategy,
		Recommendations: resp.Recommendations,
		Model:           resp.Model,
		Provider:        resp.Provider,
		GeneratedAt:     e.now(),
	}
	if meta.Recommendations == nil {
		meta.Recommendations = []string{}
	}
	return pairs, meta, nil
}

func buildAIRequest(r roster, opts Options) model.AIPairingRequest {
	profiles := make([]model.AIStudentProfile, len(r.students))
	for i, s := range r.students {
		profiles[i] = model.AIStudentProfile{
			ID:             s.ID,
			Name:           s.Name,
			Marks:          s.Marks,
			StudentFactors: opts.AdditionalFactors[s.ID],
		}
	}

	goals := opts.PairingGoals
	if len(goals) == 0 {
		goals = []string{defaultPairingGoal}
	}

	return model.AIPairingRequest{
		Students:    profiles,
		Goals:       goals,
		Class:       opts.ClassContext,
		Preferences: opts.TeacherPreferences,
	}
}

// mapAIPairs resolves AI members to roster snapshots. The proposal must
// place every student exactly once in pairs, with a single group of three
// when the roster is odd. Every pair needs a confidence score in [0, 100]
// and every member a tutor, peer or mentee role.
func mapAIPairs(aiPairs []model.AIPair, students []model.Student) ([]provisional, error) {
	byID := make(map[string]model.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}

	seen := make(map[string]bool, len(students))
	pairs := make([]provisional, 0, len(aiPairs))
	trios := 0
	for i, ap := range aiPairs {
		switch len(ap.Students) {
		case 2:
		case 3:
			// Only an odd roster needs a group of three, and only one.
			trios++
			if len(students)%2 == 0 || trios > 1 {
				return nil, fmt.Errorf("AI pair %d is an unexpected group of three", i+1)
			}
		default:
			return nil, fmt.Errorf("AI pair %d has %d students", i+1, len(ap.Students))
		}
		if ap.ConfidenceScore == nil {
			return nil, fmt.Errorf("AI pair %d has no confidence score", i+1)
		}
		if c := *ap.ConfidenceScore; c < 0 || c > 100 {
			return nil, fmt.Errorf("AI pair %d has confidence score %v outside [0, 100]", i+1, c)
		}
		members := make([]model.Student, 0, len(ap.Students))
		roles := make([]string, 0, len(ap.Students))
		for _, m := range ap.Students {
			s, ok := byID[m.ID]
			if !ok {
				return nil, fmt.Errorf("AI pair %d references unknown student %q", i+1, m.ID)
			}
			if !slices.Contains(aiRoles, m.Role) {
				return nil, fmt.Errorf("AI pair %d gives %q unknown role %q", i+1, m.ID, m.Role)
			}
			if seen[m.ID] {
				return nil, fmt.Errorf("AI pairs place student %q more than once", m.ID)
			}
			seen[m.ID] = true
			s.Role = m.Role
			members = append(members, s)
			roles = append(roles, m.Role)
		}

		confidence := *ap.ConfidenceScore
		p := provisional{
			pairType:         aiPairType(roles),
			students:         members,
			rationale:        ap.Rationale,
			confidence:       &confidence,
			expectedOutcome:  ap.ExpectedOutcome,
			teachingStrategy: ap.TeachingStrategy,
		}
		if ap.Rationale != "" {
			p.recommendation = ap.Rationale
			if ap.ExpectedOutcome != "" {
				p.recommendation += " Expected outcome: " + ap.ExpectedOutcome
			}
		}
		pairs = append(pairs, p)
	}

	if len(seen) != len(students) {
		return nil, fmt.Errorf("AI pairs cover %d of %d students", len(seen), len(students))
	}
	return pairs, nil
}

var aiRoles = []string{"tutor", "peer", "mentee"}

func aiPairType(roles []string) model.PairType {
	switch {
	case slices.Contains(roles, "tutor") && slices.Contains(roles, "mentee"):
		return model.PairAITutoring
	case allEqual(roles, "peer"):
		return model.PairAICollaborative
	default:
		return model.PairAIMixed
	}
}

func allEqual(values []string, want string) bool {
	for _, v := range values {
		if v != want {
			return false
		}
	}
	return len(values) > 0
}

func aiMetrics(pairs []model.Pair, meta *model.AIMetadata) *model.AIMetrics {
	m := &model.AIMetrics{PairTypes: make(map[model.PairType]int)}
	if meta != nil {
		m.OverallStrategy = meta.OverallStrategy
	}
	var total float64
	for _, p := range pairs {
		m.PairTypes[p.Type]++
		if p.AIConfidence != nil {
			total += *p.AIConfidence
		}
	}
	if len(pairs) > 0 {
		m.AverageConfidence = total / float64(len(pairs))
	}
	return m
}
