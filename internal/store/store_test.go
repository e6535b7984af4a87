package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/pairwise/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	s := New(kv)
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every KV that can run in this environment. Redis is
// included when PAIRWISE_TEST_REDIS_URL is set.
func backends(t *testing.T) map[string]KV {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	out := map[string]KV{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}

	if url := os.Getenv("PAIRWISE_TEST_REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("parse redis url: %v", err)
		}
		client := redis.NewClient(opts)
		prefix := "pairwise-test:" + t.Name() + ":"
		ctx := context.Background()
		t.Cleanup(func() {
			keys, _ := client.Keys(ctx, prefix+"*").Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			client.Close()
		})
		out["redis"] = NewRedis(client, prefix)
	}
	return out
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing: got %v, want ErrNotFound", err)
			}

			for _, k := range []string{"b:2", "a:1", "b:1", "bb:1"} {
				if err := kv.Put(ctx, k, []byte("v-"+k)); err != nil {
					t.Fatalf("Put %s: %v", k, err)
				}
			}
			if err := kv.Put(ctx, "a:1", []byte("updated")); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}

			got, err := kv.Get(ctx, "a:1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "updated" {
				t.Errorf("Get a:1 = %q, want updated", got)
			}

			keys, err := kv.Keys(ctx, "b:")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "b:1" || keys[1] != "b:2" {
				t.Errorf("Keys(b:) = %v, want [b:1 b:2]", keys)
			}

			all, err := kv.Keys(ctx, "")
			if err != nil {
				t.Fatalf("Keys all: %v", err)
			}
			if len(all) != 4 {
				t.Errorf("Keys() = %v, want 4 keys", all)
			}
		})
	}
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pairwise.db")

	kv, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := kv.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	kv.Close()

	kv, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()
	got, err := kv.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, "memory")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := kv.(*Memory); !ok {
		t.Errorf("Open(memory) = %T, want *Memory", kv)
	}

	kv, err = Open(ctx, filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer kv.Close()
	if _, ok := kv.(*SQLite); !ok {
		t.Errorf("Open(path) = %T, want *SQLite", kv)
	}

	if _, err := Open(ctx, "redis://%zz"); err == nil {
		t.Error("Open with a bad redis url should fail")
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	list, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	older := model.PerformanceSession{
		ID:          "session-1",
		ClassName:   "7B",
		SessionName: "Quiz 1",
		UploadDate:  base,
		Students:    []model.Student{{ID: "s1", Name: "Ann", Marks: 55, SessionID: "session-1", OriginalID: "s1"}},
		Stats:       model.StatSummary{Min: 55, Max: 55, Average: 55, Median: 55},
	}
	newer := older
	newer.ID = "session-2"
	newer.SessionName = "Quiz 2"
	newer.UploadDate = base.Add(7 * 24 * time.Hour)

	for _, sess := range []model.PerformanceSession{older, newer} {
		if err := s.SaveSession(ctx, sess); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	got, err := s.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SessionName != "Quiz 1" || len(got.Students) != 1 || got.Students[0].Marks != 55 {
		t.Errorf("GetSession = %+v", got)
	}
	if !got.UploadDate.Equal(base) {
		t.Errorf("UploadDate = %v, want %v", got.UploadDate, base)
	}

	list, err = s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "session-2" {
		t.Errorf("ListSessions order = %v", []string{list[0].ID, list[1].ID})
	}

	if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession missing: got %v, want ErrNotFound", err)
	}
	if err := s.SaveSession(ctx, model.PerformanceSession{}); err == nil {
		t.Error("SaveSession without id should fail")
	}
}

func TestPairings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	confidence := 77.0
	records := []model.PairingRecord{
		{ID: "pairing-a", SessionID: "session-1", CreatedAt: base, Strategy: model.StrategyOptimal},
		{ID: "pairing-b", SessionID: "session-2", CreatedAt: base.Add(time.Hour), Strategy: model.StrategyRandom},
		{
			ID: "pairing-c", SessionID: "session-1", CreatedAt: base.Add(2 * time.Hour), Strategy: model.StrategyAI,
			Pairs: []model.Pair{{ID: "ai-pair-1", Type: model.PairAITutoring, AIConfidence: &confidence}},
			Stats: model.PairingStats{PairingStrategy: model.StrategyAI},
		},
	}
	for _, rec := range records {
		if err := s.SavePairing(ctx, rec); err != nil {
			t.Fatalf("SavePairing: %v", err)
		}
	}

	got, err := s.GetPairing(ctx, "pairing-c")
	if err != nil {
		t.Fatalf("GetPairing: %v", err)
	}
	if len(got.Pairs) != 1 || got.Pairs[0].AIConfidence == nil || *got.Pairs[0].AIConfidence != 77 {
		t.Errorf("GetPairing pairs = %+v", got.Pairs)
	}

	all, err := s.ListPairings(ctx, "")
	if err != nil {
		t.Fatalf("ListPairings: %v", err)
	}
	if len(all) != 3 || all[0].ID != "pairing-c" || all[2].ID != "pairing-a" {
		t.Errorf("ListPairings order wrong: %d records", len(all))
	}

	forSession, err := s.ListPairings(ctx, "session-1")
	if err != nil {
		t.Fatalf("ListPairings(session-1): %v", err)
	}
	if len(forSession) != 2 {
		t.Errorf("ListPairings(session-1) = %d records, want 2", len(forSession))
	}

	if _, err := s.GetPairing(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPairing missing: got %v, want ErrNotFound", err)
	}
}

func TestPairingHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	records := []model.PairingRecord{
		{ID: "pairing-a", SessionID: "session-1", CreatedAt: base, Pairs: []model.Pair{{ID: "pair-1"}, {ID: "pair-2"}}},
		{ID: "pairing-b", SessionID: "session-1", CreatedAt: base.Add(time.Hour), Pairs: []model.Pair{{ID: "pair-9"}}},
	}
	for _, rec := range records {
		if err := s.SavePairing(ctx, rec); err != nil {
			t.Fatalf("SavePairing: %v", err)
		}
	}

	tests := []struct {
		name      string
		sessionID string
		ids       []string
		want      []string
	}{
		{"latest for session", "session-1", nil, []string{"pair-9"}},
		{"no records for session", "session-2", nil, nil},
		{"explicit ids in order", "", []string{"pairing-a", "pairing-b"}, []string{"pair-1", "pair-2", "pair-9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := s.PairingHistory(ctx, tt.sessionID, tt.ids)
			if err != nil {
				t.Fatalf("PairingHistory: %v", err)
			}
			var got []string
			for _, p := range pairs {
				got = append(got, p.ID)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("PairingHistory = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := s.PairingHistory(ctx, "", []string{"missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("PairingHistory missing: got %v, want ErrNotFound", err)
	}
}
