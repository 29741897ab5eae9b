package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/ledger"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	ledgerTimeout   = 3 * time.Second
)

// RunsHandler serves read-only views of the run ledger.
type RunsHandler struct {
	repo    ledger.Repository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the repository and logger.
func NewRunsHandler(repo ledger.Repository, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{repo: repo, timeout: ledgerTimeout, logger: logger}
}

// Routes registers the /api/runs tree on r.
func (h *RunsHandler) Routes(r chi.Router) {
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", h.ListRuns)
		r.Route("/{run_id}", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Get("/units", h.ListUnits)
			r.Get("/failed-targets", h.ListFailedTargets)
		})
	})
}

// ListRuns handles GET /api/runs?limit=. It returns {"runs": [...]}, 400 for
// a bad limit, or 503 without a ledger.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListRuns(ctx, limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// GetRun handles GET /api/runs/{run_id}. Unknown runs are 404.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	run, err := h.repo.GetRun(ctx, id)
	if err != nil {
		h.repoError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListUnits handles GET /api/runs/{run_id}/units.
func (h *RunsHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	id, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	if _, err := h.repo.GetRun(ctx, id); err != nil {
		h.repoError(w, "get run", err)
		return
	}
	units, err := h.repo.ListUnits(ctx, id)
	if err != nil {
		h.repoError(w, "list units", err)
		return
	}
	out := make([]unitDTO, 0, len(units))
	for _, u := range units {
		out = append(out, unitDTO{
			Key:        u.Key,
			URL:        u.URL,
			Result:     u.Result,
			Bytes:      u.Bytes,
			HTTPStatus: u.HTTPStatus,
			DurationMS: u.Duration.Milliseconds(),
			Note:       u.Note,
			At:         u.At,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": out})
}

// ListFailedTargets handles GET /api/runs/{run_id}/failed-targets.
func (h *RunsHandler) ListFailedTargets(w http.ResponseWriter, r *http.Request) {
	id, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	if _, err := h.repo.GetRun(ctx, id); err != nil {
		h.repoError(w, "get run", err)
		return
	}
	targets, err := h.repo.ListFailedTargets(ctx, id)
	if err != nil {
		h.repoError(w, "list failed targets", err)
		return
	}
	out := make([]targetDTO, 0, len(targets))
	for _, t := range targets {
		out = append(out, targetDTO{
			Key:      t.Key,
			URL:      t.URL,
			Path:     t.Path,
			Category: t.Category,
			Note:     t.Note,
			At:       t.At,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": out})
}

// begin validates the repository and run id and derives the request context.
func (h *RunsHandler) begin(w http.ResponseWriter, r *http.Request) (uuid.UUID, context.Context, context.CancelFunc, bool) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
		return uuid.UUID{}, nil, nil, false
	}
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.UUID{}, nil, nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	return id, ctx, cancel, true
}

func (h *RunsHandler) repoError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultRunLimit, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxRunLimit), nil
}

type runDTO struct {
	ID         string     `json:"id"`
	Harvester  string     `json:"harvester"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Note       string     `json:"note,omitempty"`
}

func toRunDTO(run ledger.Run) runDTO {
	return runDTO{
		ID:         run.ID.String(),
		Harvester:  run.Harvester,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Note:       run.Note,
	}
}

type unitDTO struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Result     string    `json:"result"`
	Bytes      int64     `json:"bytes"`
	HTTPStatus int       `json:"http_status,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Note       string    `json:"note,omitempty"`
	At         time.Time `json:"at"`
}

type targetDTO struct {
	Key      string    `json:"key"`
	URL      string    `json:"url"`
	Path     string    `json:"path"`
	Category string    `json:"category"`
	Note     string    `json:"note,omitempty"`
	At       time.Time `json:"at"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
