package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/freeeve/chessanalyzer/internal/jobs"
)

// EngineStatus describes the configured batch engine.
type EngineStatus struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"engine"`
	Driver  string `json:"driver,omitempty"`
	Depth   int    `json:"depth"`
	Queue   bool   `json:"queue"`
}

type UploadResponse struct {
	GameID string `json:"gameId"`
	Queued bool   `json:"queued"`
}

type EnqueueResponse struct {
	GameID string `json:"gameId"`
	Queued bool   `json:"queued"`
}

// RunResponse mirrors a single job-runner pass: processed is 0 or 1.
type RunResponse struct {
	Processed int    `json:"processed"`
	GameID    string `json:"gameId,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

func ToRunResponse(out jobs.Outcome) RunResponse {
	if !out.Processed {
		return RunResponse{Processed: 0, Message: "no pending jobs"}
	}
	return RunResponse{Processed: 1, GameID: out.GameID}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
	// Don't call http.Error after setting headers - it causes "superfluous WriteHeader"
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, errorResponse{Error: msg})
}
