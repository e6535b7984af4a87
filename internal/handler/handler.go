package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pavelanni/pairwise/internal/i18n"
	"github.com/pavelanni/pairwise/internal/model"
	"github.com/pavelanni/pairwise/internal/pairing"
	"github.com/pavelanni/pairwise/internal/roster"
	"github.com/pavelanni/pairwise/internal/store"
	"github.com/pavelanni/pairwise/internal/trend"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	engine *pairing.Engine
	now    func() time.Time
}

// New creates a new Handler.
func New(s *store.Store, e *pairing.Engine) *Handler {
	return &Handler{store: s, engine: e, now: time.Now}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/pairings", h.handleCreatePairing)
		r.Get("/pairings", h.handleListPairings)
		r.Get("/pairings/{id}", h.handleGetPairing)
		r.Put("/pairings/{id}/pairs/{pairID}", h.handleEditPair)
		r.Post("/pairings/{id}/regenerate", h.handleRegenerate)

		r.Post("/sessions", h.handleCreateSession)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{id}", h.handleGetSession)

		r.Post("/trends", h.handleTrends)
		r.Post("/rosters", h.handleParseRoster)
	})
}

type studentInput struct {
	ID    string   `json:"id" validate:"required"`
	Name  string   `json:"name" validate:"required"`
	Marks *float64 `json:"marks" validate:"required"`
}

func (s studentInput) student() model.Student {
	return model.Student{ID: s.ID, Name: s.Name, Marks: *s.Marks}
}

func toStudents(in []studentInput) []model.Student {
	out := make([]model.Student, len(in))
	for i, s := range in {
		out[i] = s.student()
		out[i].OriginalRow = i + 1
	}
	return out
}

type pairingRequest struct {
	// Students of SessionID are paired when Students is omitted.
	SessionID          string                          `json:"sessionId" validate:"required_without=Students"`
	Students           []studentInput                  `json:"students" validate:"required_without=SessionID,dive"`
	Strategy           model.Strategy                  `json:"strategy"`
	AdditionalFactors  map[string]model.StudentFactors `json:"additionalFactors"`
	ClassContext       model.ClassContext              `json:"classContext"`
	TeacherPreferences model.TeacherPreferences        `json:"teacherPreferences"`
	PairingGoals       []string                        `json:"pairingGoals"`
}

type regenerateRequest struct {
	// CurrentStrategy defaults to the strategy of the stored record.
	CurrentStrategy    model.Strategy                  `json:"currentStrategy"`
	AdditionalFactors  map[string]model.StudentFactors `json:"additionalFactors"`
	ClassContext       model.ClassContext              `json:"classContext"`
	TeacherPreferences model.TeacherPreferences        `json:"teacherPreferences"`
	PairingGoals       []string                        `json:"pairingGoals"`
}

// editPairRequest carries the new snapshots of a pair's members. The ids
// must be exactly the pair's current members.
type editPairRequest struct {
	Students []studentInput `json:"students" validate:"required,dive"`
}

type sessionRequest struct {
	ClassName   string         `json:"className" validate:"required"`
	Subject     string         `json:"subject" validate:"required"`
	SessionName string         `json:"sessionName"`
	Students    []studentInput `json:"students" validate:"required,dive"`
}

type trendRequest struct {
	PreviousSessionID string `json:"previousSessionId" validate:"required"`
	CurrentSessionID  string `json:"currentSessionId" validate:"required,nefield=PreviousSessionID"`
	// PairingIDs defaults to the latest pairing recorded for the previous session.
	PairingIDs []string `json:"pairingIds" validate:"omitempty,dive,required"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreatePairing(w http.ResponseWriter, r *http.Request) {
	var req pairingRequest
	if err := decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	students := toStudents(req.Students)
	if len(req.Students) == 0 {
		sess, err := h.store.GetSession(r.Context(), req.SessionID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		students = sess.Students
	}

	res, err := h.engine.Generate(r.Context(), students, pairing.Options{
		Strategy:           req.Strategy,
		AdditionalFactors:  req.AdditionalFactors,
		ClassContext:       req.ClassContext,
		TeacherPreferences: req.TeacherPreferences,
		PairingGoals:       req.PairingGoals,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rec := pairing.NewRecord(req.SessionID, students, res, h.now())
	if err := h.store.SavePairing(r.Context(), rec); err != nil {
		h.fail(w, r, err)
		return
	}
	slog.Info("pairing created", "id", rec.ID, "strategy", rec.Strategy, "pairs", len(rec.Pairs))
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleListPairings(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListPairings(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleGetPairing(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetPairing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleEditPair(w http.ResponseWriter, r *http.Request) {
	var req editPairRequest
	if err := decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.store.GetPairing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	students := make([]model.Student, len(req.Students))
	for i, in := range req.Students {
		students[i] = in.student()
	}
	res, err := h.engine.EditPair(pairing.RecordResult(rec), chi.URLParam(r, "pairID"), students)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rec.Pairs = res.Pairs
	for i, s := range rec.Roster {
		if j := slices.IndexFunc(students, func(e model.Student) bool { return e.ID == s.ID }); j >= 0 {
			rec.Roster[i].Name = students[j].Name
			rec.Roster[i].Marks = students[j].Marks
		}
	}
	if err := h.store.SavePairing(r.Context(), rec); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := decode(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}

	prev, err := h.store.GetPairing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	current := req.CurrentStrategy
	if current == "" {
		current = prev.Strategy
	}
	res, err := h.engine.Regenerate(r.Context(), prev.Roster, prev.Pairs, pairing.Options{
		AdditionalFactors:  req.AdditionalFactors,
		ClassContext:       req.ClassContext,
		TeacherPreferences: req.TeacherPreferences,
		PairingGoals:       req.PairingGoals,
		CurrentStrategy:    current,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rec := pairing.NewRecord(prev.SessionID, prev.Roster, res, h.now())
	if err := h.store.SavePairing(r.Context(), rec); err != nil {
		h.fail(w, r, err)
		return
	}
	slog.Info("pairing regenerated", "from", prev.ID, "id", rec.ID, "strategy", rec.Strategy)
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	sess, err := trend.NewSession(toStudents(req.Students), trend.SessionInfo{
		ClassName:   req.ClassName,
		Subject:     req.Subject,
		SessionName: req.SessionName,
	}, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.SaveSession(r.Context(), sess); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) {
	var req trendRequest
	if err := decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	prev, err := h.store.GetSession(r.Context(), req.PreviousSessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cur, err := h.store.GetSession(r.Context(), req.CurrentSessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history, err := h.store.PairingHistory(r.Context(), prev.ID, req.PairingIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, trend.Analyze(prev, cur, history, h.now()))
}

var errInvalidRoster = errors.New("invalid roster")

// handleParseRoster converts an uploaded CSV or JSON roster into students.
// CSV is expected when the Content-Type is text/csv.
func (h *Handler) handleParseRoster(w http.ResponseWriter, r *http.Request) {
	format := roster.FormatJSON
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "text/csv" {
		format = roster.FormatCSV
	}
	students, err := roster.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", errInvalidRoster, err))
		return
	}
	writeJSON(w, http.StatusOK, students)
}

var errInvalidBody = errors.New("invalid request body")

// decode reads a JSON body into v and validates it. An empty body is
// accepted when optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return validate.Struct(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var clientErrors = []struct {
	target error
	status int
	msgID  string
}{
	{errInvalidBody, http.StatusBadRequest, "ErrInvalidRequest"},
	{pairing.ErrInsufficientRoster, http.StatusBadRequest, "ErrInsufficientRoster"},
	{pairing.ErrDuplicateStudent, http.StatusBadRequest, "ErrDuplicateStudent"},
	{pairing.ErrPairTooSmall, http.StatusBadRequest, "ErrPairTooSmall"},
	{trend.ErrEmptySession, http.StatusBadRequest, "ErrEmptySession"},
	{pairing.ErrEditBreaksPartition, http.StatusBadRequest, "ErrEditBreaksPartition"},
	{errInvalidRoster, http.StatusBadRequest, "ErrInvalidRoster"},
	{pairing.ErrPairNotFound, http.StatusNotFound, "ErrPairNotFound"},
	{store.ErrNotFound, http.StatusNotFound, "ErrNotFound"},
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   i18n.T(r.Context(), "ErrInvalidRequest"),
			Details: verrs.Error(),
		})
		return
	}
	for _, ce := range clientErrors {
		if errors.Is(err, ce.target) {
			writeJSON(w, ce.status, errorResponse{
				Error:   i18n.T(r.Context(), ce.msgID),
				Details: err.Error(),
			})
			return
		}
	}

	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: i18n.T(r.Context(), "ErrInternal")})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
