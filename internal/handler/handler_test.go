package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/pairwise/internal/i18n"
	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/pairing"
	"github.com/pavelanni/pairwise/internal/store"
	"github.com/pavelanni/pairwise/internal/trend"
)

var testNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := store.New(store.NewMemory())
	engine := pairing.NewEngine(nil, pairing.WithRand(rand.New(rand.NewPCG(7, 8))))
	h := New(s, engine)
	h.now = func() time.Time { return testNow }

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, header ...string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func students(marks ...float64) []map[string]any {
	out := make([]map[string]any, len(marks))
	names := []string{"Asha", "Bilal", "Chen", "Dana", "Eli", "Farah"}
	for i, m := range marks {
		out[i] = map[string]any{"id": "s" + string(rune('1'+i)), "name": names[i], "marks": m}
	}
	return out
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func createPairing(t *testing.T, srv *httptest.Server, body map[string]any) model.PairingRecord {
	t.Helper()
	status, data := call(t, srv, http.MethodPost, "/api/pairings", body)
	require.Equal(t, http.StatusCreated, status, string(data))
	return decodeAs[model.PairingRecord](t, data)
}

func createSession(t *testing.T, srv *httptest.Server, name string, marks ...float64) model.PerformanceSession {
	t.Helper()
	status, data := call(t, srv, http.MethodPost, "/api/sessions", map[string]any{
		"className":   "7B",
		"subject":     "Math",
		"sessionName": name,
		"students":    students(marks...),
	})
	require.Equal(t, http.StatusCreated, status, string(data))
	return decodeAs[model.PerformanceSession](t, data)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, data := call(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestCreateAndFetchPairing(t *testing.T) {
	srv := newTestServer(t)

	rec := createPairing(t, srv, map[string]any{
		"strategy": "optimal",
		"students": students(60, 10, 90, 40),
	})
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.StrategyOptimal, rec.Strategy)
	assert.Len(t, rec.Pairs, 2)
	assert.Len(t, rec.Roster, 4)
	assert.Equal(t, 4, rec.Stats.TotalStudents)
	assert.Equal(t, testNow, rec.CreatedAt)

	status, data := call(t, srv, http.MethodGet, "/api/pairings/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, status)
	got := decodeAs[model.PairingRecord](t, data)
	assert.Equal(t, rec.Pairs, got.Pairs)

	status, data = call(t, srv, http.MethodGet, "/api/pairings", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeAs[[]model.PairingRecord](t, data), 1)
}

func TestCreatePairingErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{
			name:   "single student",
			body:   map[string]any{"students": students(50)},
			status: http.StatusBadRequest,
			msg:    "At least 2 students are required for pairing",
		},
		{
			name: "duplicate id",
			body: map[string]any{"students": []map[string]any{
				{"id": "a", "name": "A", "marks": 10},
				{"id": "a", "name": "B", "marks": 20},
			}},
			status: http.StatusBadRequest,
			msg:    "The roster contains a duplicate student ID",
		},
		{
			name:   "missing marks",
			body:   map[string]any{"students": []map[string]any{{"id": "a", "name": "A"}, {"id": "b", "name": "B", "marks": 1}}},
			status: http.StatusBadRequest,
			msg:    "Invalid request",
		},
		{
			name:   "neither students nor session",
			body:   map[string]any{"strategy": "random"},
			status: http.StatusBadRequest,
			msg:    "Invalid request",
		},
		{
			name:   "unknown session",
			body:   map[string]any{"sessionId": "session-missing"},
			status: http.StatusNotFound,
			msg:    "Not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := call(t, srv, http.MethodPost, "/api/pairings", tt.body)
			assert.Equal(t, tt.status, status)
			resp := decodeAs[errorResponse](t, data)
			assert.Equal(t, tt.msg, resp.Error)
		})
	}
}

func TestEmptyBody(t *testing.T) {
	srv := newTestServer(t)
	status, data := call(t, srv, http.MethodPost, "/api/pairings", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request", decodeAs[errorResponse](t, data).Error)
}

func TestErrorLocalized(t *testing.T) {
	srv := newTestServer(t)
	status, data := call(t, srv, http.MethodPost, "/api/pairings",
		map[string]any{"students": students(50)}, "Accept-Language", "ru")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Для распределения нужно не менее 2 учеников", decodeAs[errorResponse](t, data).Error)
}

func TestGetPairingNotFound(t *testing.T) {
	srv := newTestServer(t)
	status, data := call(t, srv, http.MethodGet, "/api/pairings/pairing-nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", decodeAs[errorResponse](t, data).Error)
}

func snapshot(s model.Student) map[string]any {
	return map[string]any{"id": s.ID, "name": s.Name, "marks": s.Marks}
}

func TestEditPair(t *testing.T) {
	srv := newTestServer(t)
	rec := createPairing(t, srv, map[string]any{
		"strategy": "optimal",
		"students": students(60, 10, 90, 40),
	})
	first := rec.Pairs[0].Students
	path := "/api/pairings/" + rec.ID + "/pairs/pair-1"

	renamed := snapshot(first[0])
	renamed["name"] = "Renamed"
	renamed["marks"] = 30
	moved := snapshot(first[1])
	moved["marks"] = 70

	status, data := call(t, srv, http.MethodPut, path, map[string]any{"students": []map[string]any{moved, renamed}})
	require.Equal(t, http.StatusOK, status, string(data))
	edited := decodeAs[model.PairingRecord](t, data)
	assert.Equal(t, rec.ID, edited.ID)

	p := edited.Pairs[0]
	require.Equal(t, "pair-1", p.ID)
	require.Len(t, p.Students, 2)
	assert.Equal(t, first[1].ID, p.Students[0].ID)
	assert.Equal(t, first[0].ID, p.Students[1].ID)
	assert.Equal(t, "Renamed", p.Students[1].Name)
	assert.Equal(t, first[0].Category, p.Students[1].Category)
	assert.Equal(t, 50.0, p.AverageScore)
	assert.Equal(t, 40.0, p.ScoreGap)
	assert.Equal(t, rec.Pairs[1], edited.Pairs[1])

	seen := make(map[string]int)
	for _, pair := range edited.Pairs {
		for _, st := range pair.Students {
			seen[st.ID]++
		}
	}
	assert.Equal(t, map[string]int{"s1": 1, "s2": 1, "s3": 1, "s4": 1}, seen)

	for _, st := range edited.Roster {
		if st.ID == first[0].ID {
			assert.Equal(t, "Renamed", st.Name)
			assert.Equal(t, 30.0, st.Marks)
		}
	}

	status, data = call(t, srv, http.MethodGet, "/api/pairings/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, status)
	stored := decodeAs[model.PairingRecord](t, data)
	assert.Equal(t, edited.Pairs, stored.Pairs)
	assert.Equal(t, edited.Roster, stored.Roster)
}

func TestEditPairErrors(t *testing.T) {
	srv := newTestServer(t)
	rec := createPairing(t, srv, map[string]any{
		"strategy": "optimal",
		"students": students(60, 10, 90, 40),
	})
	first, second := rec.Pairs[0].Students, rec.Pairs[1].Students
	pairPath := "/api/pairings/" + rec.ID + "/pairs/pair-1"
	partition := "Every student must stay in exactly one pair"

	tests := []struct {
		name     string
		path     string
		students []map[string]any
		status   int
		msg      string
	}{
		{"unknown pair", "/api/pairings/" + rec.ID + "/pairs/pair-9", []map[string]any{snapshot(first[0]), snapshot(first[1])}, http.StatusNotFound, "Pair not found"},
		{"too small", pairPath, []map[string]any{snapshot(first[0])}, http.StatusBadRequest, "A pair needs at least 2 students"},
		{"member of another pair", pairPath, []map[string]any{snapshot(first[0]), snapshot(second[0])}, http.StatusBadRequest, partition},
		{"unknown student", pairPath, []map[string]any{snapshot(first[0]), {"id": "zz", "name": "Zed", "marks": 50}}, http.StatusBadRequest, partition},
		{"missing marks", pairPath, []map[string]any{snapshot(first[0]), {"id": first[1].ID, "name": first[1].Name}}, http.StatusBadRequest, "Invalid request"},
		{"unknown record", "/api/pairings/pairing-nope/pairs/pair-1", []map[string]any{snapshot(first[0]), snapshot(first[1])}, http.StatusNotFound, "Not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := call(t, srv, http.MethodPut, tt.path, map[string]any{"students": tt.students})
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, decodeAs[errorResponse](t, data).Error)
		})
	}

	// Rejected edits leave the stored pairing untouched.
	status, data := call(t, srv, http.MethodGet, "/api/pairings/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, rec.Pairs, decodeAs[model.PairingRecord](t, data).Pairs)
}

func TestRegenerate(t *testing.T) {
	srv := newTestServer(t)
	rec := createPairing(t, srv, map[string]any{
		"strategy": "optimal",
		"students": students(60, 10, 90, 40, 70),
	})

	status, data := call(t, srv, http.MethodPost, "/api/pairings/"+rec.ID+"/regenerate", nil)
	require.Equal(t, http.StatusCreated, status, string(data))
	next := decodeAs[model.PairingRecord](t, data)

	assert.NotEqual(t, rec.ID, next.ID)
	assert.NotEqual(t, model.StrategyOptimal, next.Strategy)
	assert.Equal(t, rec.Roster, next.Roster)
	assert.Equal(t, 5, next.Stats.TotalStudents)

	status, data = call(t, srv, http.MethodGet, "/api/pairings", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeAs[[]model.PairingRecord](t, data), 2)
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t)
	sess := createSession(t, srv, "Week 1", 60, 10, 90, 40)

	assert.Equal(t, "7B", sess.ClassName)
	assert.Equal(t, "Week 1", sess.SessionName)
	assert.Equal(t, 50.0, sess.Stats.Average)
	for _, s := range sess.Students {
		assert.Equal(t, sess.ID, s.SessionID)
	}

	status, data := call(t, srv, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, sess.ID, decodeAs[model.PerformanceSession](t, data).ID)

	status, data = call(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeAs[[]model.PerformanceSession](t, data), 1)

	status, data = call(t, srv, http.MethodPost, "/api/sessions", map[string]any{
		"className": "7B", "subject": "Math", "students": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "A session needs at least one student", decodeAs[errorResponse](t, data).Error)
}

func TestTrends(t *testing.T) {
	srv := newTestServer(t)
	prev := createSession(t, srv, "Week 1", 60, 10, 90, 40)
	rec := createPairing(t, srv, map[string]any{"sessionId": prev.ID, "strategy": "optimal"})
	assert.Equal(t, prev.ID, rec.SessionID)
	cur := createSession(t, srv, "Week 2", 66, 20, 90, 40)

	status, data := call(t, srv, http.MethodPost, "/api/trends", map[string]any{
		"previousSessionId": prev.ID,
		"currentSessionId":  cur.ID,
	})
	require.Equal(t, http.StatusOK, status, string(data))
	report := decodeAs[trend.Report](t, data)

	assert.Len(t, report.StudentTrends, 4)
	assert.Equal(t, 2, report.Overview.SessionComparison.StudentsImproved)
	assert.Equal(t, 2, report.Overview.SessionComparison.StudentsNoChange)
	assert.Len(t, report.PairTrends, len(rec.Pairs))
	assert.Equal(t, testNow, report.Overview.GeneratedAt)

	status, data = call(t, srv, http.MethodPost, "/api/trends", map[string]any{
		"previousSessionId": prev.ID,
		"currentSessionId":  cur.ID,
		"pairingIds":        []string{rec.ID, rec.ID},
	})
	require.Equal(t, http.StatusOK, status, string(data))
	assert.Len(t, decodeAs[trend.Report](t, data).PairTrends, 2*len(rec.Pairs))
}

func TestTrendsErrors(t *testing.T) {
	srv := newTestServer(t)
	prev := createSession(t, srv, "Week 1", 60, 10)

	status, data := call(t, srv, http.MethodPost, "/api/trends", map[string]any{
		"previousSessionId": prev.ID,
		"currentSessionId":  prev.ID,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request", decodeAs[errorResponse](t, data).Error)

	status, data = call(t, srv, http.MethodPost, "/api/trends", map[string]any{
		"previousSessionId": prev.ID,
		"currentSessionId":  "session-missing",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", decodeAs[errorResponse](t, data).Error)
}

func TestParseRoster(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/api/rosters", "text/csv; charset=utf-8",
		strings.NewReader("Name,Roll No,Marks\nAsha,1,50\nBilal,2,70.5\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []model.Student
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, model.Student{ID: "1", Name: "Asha", Marks: 50, OriginalRow: 1}, got[0])
	assert.Equal(t, 70.5, got[1].Marks)

	bad, err := srv.Client().Post(srv.URL+"/api/rosters", "text/csv",
		strings.NewReader("Name,Roll,Marks\nAsha,1,abc\n"))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	var e errorResponse
	require.NoError(t, json.NewDecoder(bad.Body).Decode(&e))
	assert.Equal(t, "Could not read the roster file", e.Error)
}
