// Package trend compares two performance sessions of the same class and
// reports per-student progress, pair effectiveness, insights and
// recommendations.
package trend

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/stats"
)

// ErrEmptySession is returned when a session is created without students.
var ErrEmptySession = errors.New("a session needs at least one student")

// SessionInfo describes the class a roster snapshot belongs to.
type SessionInfo struct {
	ClassName   string `json:"className"`
	Subject     string `json:"subject"`
	SessionName string `json:"sessionName,omitempty"`
}

// NewSession snapshots students as a PerformanceSession taken at now.
func NewSession(students []model.Student, info SessionInfo, now time.Time) (model.PerformanceSession, error) {
	if len(students) == 0 {
		return model.PerformanceSession{}, ErrEmptySession
	}
	summary, err := stats.Summarize(stats.Marks(students))
	if err != nil {
		return model.PerformanceSession{}, fmt.Errorf("summarize session: %w", err)
	}

	id := "session-" + uuid.NewString()
	name := info.SessionName
	if name == "" {
		name = fmt.Sprintf("Session %d", now.UnixMilli())
	}

	tagged := slices.Clone(students)
	for i := range tagged {
		tagged[i].SessionID = id
		tagged[i].OriginalID = tagged[i].ID
	}

	return model.PerformanceSession{
		ID:          id,
		ClassName:   info.ClassName,
		Subject:     info.Subject,
		SessionName: name,
		UploadDate:  now.UTC(),
		Students:    tagged,
		Stats:       summary,
	}, nil
}
