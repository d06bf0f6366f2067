package api

import (
	"net/http"
	"time"

	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/plan"
	"github.com/forgekit/forge/internal/proc"
	"github.com/forgekit/forge/internal/runstate"
)

// StatusResponse is the API view of the run status snapshot
type StatusResponse struct {
	domain.RunStatus
	RunnerAlive bool `json:"runner_alive"`
}

// PlanResponse is the API view of the plan checklist
type PlanResponse struct {
	Found          bool   `json:"found"`
	Title          string `json:"title,omitempty"`
	TotalItems     int    `json:"total_items"`
	CheckedItems   int    `json:"checked_items"`
	UncheckedItems int    `json:"unchecked_items"`
}

// IterationResponse is one row of the iteration history
type IterationResponse struct {
	ID              string `json:"id"`
	Loop            uint64 `json:"loop"`
	Progress        bool   `json:"progress"`
	CircuitState    string `json:"circuit_state"`
	NoProgressCount int    `json:"no_progress_count"`
	Summary         string `json:"summary,omitempty"`
	Duration        string `json:"duration"`
	SessionID       string `json:"session_id,omitempty"`
	RecordedAt      string `json:"recorded_at"`
}

func (s *Server) statusResponse() StatusResponse {
	status := runstate.ReadStatusOrDefault(s.runtimeDir)
	alive := false
	if pid := runstate.ReadRunnerPID(s.runtimeDir); pid > 0 {
		alive = proc.Alive(pid)
	}
	return StatusResponse{RunStatus: status, RunnerAlive: alive}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, s.statusResponse())
	}
}

func (s *Server) progressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, runstate.ReadProgress(s.runtimeDir))
	}
}

func (s *Server) planHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		summary, found := plan.Analyze(s.runtimeDir)
		resp := PlanResponse{
			Found:          found,
			TotalItems:     summary.TotalItems,
			CheckedItems:   summary.CheckedItems,
			UncheckedItems: summary.UncheckedItems,
		}
		if meta, ok := plan.Meta(s.runtimeDir); ok {
			resp.Title = meta.Title
		}
		writeJSON(w, resp)
	}
}

func (s *Server) breakerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, runstate.ReadBreakerState(s.runtimeDir))
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.history == nil {
			writeJSON(w, []IterationResponse{})
			return
		}

		records, err := s.history.Recent(50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]IterationResponse, 0, len(records))
		for _, rec := range records {
			resp = append(resp, iterationToResponse(rec))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) stopRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		note, err := runstate.StopRunner(s.runtimeDir)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		s.Broadcast(Event{Type: "status", Data: s.statusResponse()})

		writeJSON(w, map[string]string{"status": "stopping", "detail": note})
	}
}

func iterationToResponse(rec domain.IterationRecord) IterationResponse {
	return IterationResponse{
		ID:              rec.ID,
		Loop:            rec.Loop,
		Progress:        rec.Progress,
		CircuitState:    string(rec.CircuitState),
		NoProgressCount: rec.NoProgressCount,
		Summary:         rec.Summary,
		Duration:        rec.Duration.Round(time.Millisecond).String(),
		SessionID:       rec.SessionID,
		RecordedAt:      rec.RecordedAt.Format(time.RFC3339),
	}
}
