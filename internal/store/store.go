// Package store persists performance sessions and pairing history as JSON
// documents on top of a pluggable key-value backend.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/pavelanni/pairwise/internal/model"
)

const (
	sessionPrefix = "session:"
	pairingPrefix = "pairing:"
)

// Store is the repository for sessions and pairing records.
type Store struct {
	kv KV
}

// New returns a Store backed by kv. The Store owns kv and closes it.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// SaveSession stores sess under its id, replacing any previous version.
func (s *Store) SaveSession(ctx context.Context, sess model.PerformanceSession) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	return s.put(ctx, sessionPrefix+sess.ID, sess)
}

// GetSession returns the session with id, or an error wrapping ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (model.PerformanceSession, error) {
	var sess model.PerformanceSession
	if err := s.get(ctx, sessionPrefix+id, &sess); err != nil {
		return model.PerformanceSession{}, fmt.Errorf("session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recent upload first.
func (s *Store) ListSessions(ctx context.Context) ([]model.PerformanceSession, error) {
	out, err := list[model.PerformanceSession](ctx, s, sessionPrefix)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b model.PerformanceSession) int {
		return b.UploadDate.Compare(a.UploadDate)
	})
	return out, nil
}

// SavePairing stores rec under its id, replacing any previous version.
func (s *Store) SavePairing(ctx context.Context, rec model.PairingRecord) error {
	if rec.ID == "" {
		return errors.New("pairing id is required")
	}
	return s.put(ctx, pairingPrefix+rec.ID, rec)
}

// GetPairing returns the record with id, or an error wrapping ErrNotFound.
func (s *Store) GetPairing(ctx context.Context, id string) (model.PairingRecord, error) {
	var rec model.PairingRecord
	if err := s.get(ctx, pairingPrefix+id, &rec); err != nil {
		return model.PairingRecord{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	return rec, nil
}

// ListPairings returns pairing records, newest first. A non-empty
// sessionID keeps only records made for that session.
func (s *Store) ListPairings(ctx context.Context, sessionID string) ([]model.PairingRecord, error) {
	all, err := list[model.PairingRecord](ctx, s, pairingPrefix)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if sessionID == "" || rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b model.PairingRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Put(ctx, key, data)
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func list[T any](ctx context.Context, s *Store, prefix string) ([]T, error) {
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := s.get(ctx, k, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// PairingHistory collects the pairs of the given records in order. With no
// ids it uses the most recent record made for sessionID, if any.
func (s *Store) PairingHistory(ctx context.Context, sessionID string, ids []string) ([]model.Pair, error) {
	if len(ids) == 0 {
		recs, err := s.ListPairings(ctx, sessionID)
		if err != nil || len(recs) == 0 {
			return nil, err
		}
		return recs[0].Pairs, nil
	}

	var pairs []model.Pair
	for _, id := range ids {
		rec, err := s.GetPairing(ctx, id)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, rec.Pairs...)
	}
	return pairs, nil
}
