// Package httpapi exposes game upload, analysis jobs and engine status over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/jobs"
	"github.com/freeeve/chessanalyzer/internal/queue"
	"github.com/freeeve/chessanalyzer/internal/rules"
	"github.com/freeeve/chessanalyzer/internal/store"
)

const maxUploadBytes = 1 << 20

// Uploader stores a PGN game and returns its id.
type Uploader interface {
	Ingest(ctx context.Context, text string) (string, error)
}

// Deps are the collaborators behind the routes. Queue, Runner and Uploader may be nil.
type Deps struct {
	Games    store.GameStore
	Queue    queue.Queue
	Runner   *jobs.Runner
	Uploader Uploader
	Engine   EngineStatus
}

// Handler serves the analysis API.
type Handler struct {
	deps Deps
	log  zerolog.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(log zerolog.Logger, deps Deps) http.Handler {
	h := &Handler{deps: deps, log: log}

	if deps.Queue == nil {
		log.Info().Msg("no analysis queue - uploads are analyzed inline")
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/games", http.HandlerFunc(h.upload))
	mux.Handle("/v1/games/", http.HandlerFunc(h.game))
	mux.Handle("/v1/analysis/jobs", http.HandlerFunc(h.enqueue))
	mux.Handle("/v1/analysis/run", http.HandlerFunc(h.run))
	mux.Handle("/v1/engine/status", http.HandlerFunc(h.engineStatus))

	handler := CORS(RequestID(AccessLog(log, mux)))
	return handler
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// upload accepts a PGN body and stores it as a new game.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.deps.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "pgn too large")
		return
	}

	id, err := h.deps.Uploader.Ingest(r.Context(), string(body))
	if errors.Is(err, rules.ErrParse) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil && id == "" {
		h.log.Error().Err(err).Msg("upload failed")
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	resp := UploadResponse{GameID: id, Queued: h.deps.Queue != nil && err == nil}
	if err != nil {
		// stored but not queued
		h.log.Warn().Err(err).Str("game_id", id).Msg("upload not queued")
	}
	writeJSONStatus(w, http.StatusCreated, resp)
}

// game serves /v1/games/{id} and /v1/games/{id}/analysis.
func (h *Handler) game(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || len(parts) > 4 || (len(parts) == 4 && parts[3] != "analysis") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[2]

	if len(parts) == 4 {
		rec, err := h.deps.Games.LoadAnalysis(r.Context(), id)
		if errors.Is(err, store.ErrAnalysisNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("game_id", id).Msg("load analysis failed")
			writeError(w, http.StatusInternalServerError, "load analysis failed")
			return
		}
		writeJSON(w, rec)
		return
	}

	g, err := h.deps.Games.LoadGame(r.Context(), id)
	if errors.Is(err, store.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("game_id", id).Msg("load game failed")
		writeError(w, http.StatusInternalServerError, "load game failed")
		return
	}
	writeJSON(w, g)
}

// enqueue queues an existing game for analysis.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis queue not configured")
		return
	}

	var job queue.Job
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job.GameID = strings.TrimSpace(job.GameID)
	if job.GameID == "" {
		writeError(w, http.StatusBadRequest, "missing gameId")
		return
	}
	if _, err := h.deps.Games.LoadGame(r.Context(), job.GameID); errors.Is(err, store.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}

	if err := h.deps.Queue.Enqueue(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("game_id", job.GameID).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	if err := h.deps.Games.UpdateGameStatus(r.Context(), job.GameID, store.StatusPending, nil); err != nil {
		h.log.Warn().Err(err).Str("game_id", job.GameID).Msg("reset status failed")
	}
	writeJSONStatus(w, http.StatusAccepted, EnqueueResponse{GameID: job.GameID, Queued: true})
}

// run drains at most one job.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.deps.Runner == nil {
		writeJSON(w, RunResponse{Processed: 0, Message: "no pending jobs"})
		return
	}

	out, err := h.deps.Runner.RunOnce(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("game_id", out.GameID).Msg("job failed")
		writeJSONStatus(w, http.StatusInternalServerError, RunResponse{
			Processed: 1,
			GameID:    out.GameID,
			Error:     err.Error(),
		})
		return
	}
	writeJSON(w, ToRunResponse(out))
}

func (h *Handler) engineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.deps.Engine)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// splitPath splits a URL path into parts
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
