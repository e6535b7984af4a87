package pairing

import (
	"time"

	"github.com/google/uuid"
	"github.com/pavelanni/pairwise/internal/model"
)

// NewRecord wraps res in a storable record with a fresh "pairing-" id.
// roster is the input the pairs were generated from.
func NewRecord(sessionID string, roster []model.Student, res *Result, now time.Time) model.PairingRecord {
	return model.PairingRecord{
		ID:         "pairing-" + uuid.NewString(),
		SessionID:  sessionID,
		CreatedAt:  now.UTC(),
		Strategy:   res.Stats.PairingStrategy,
		Roster:     roster,
		Pairs:      res.Pairs,
		Stats:      res.Stats,
		AIMetadata: res.AIMetadata,
	}
}

// RecordResult returns the pairing result held by rec.
func RecordResult(rec model.PairingRecord) *Result {
	return &Result{Pairs: rec.Pairs, Stats: rec.Stats, AIMetadata: rec.AIMetadata}
}
