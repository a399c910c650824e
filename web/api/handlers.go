package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/flowsmith/flowsmith/internal/domain"
)

// RunResponse is the API response for a run
type RunResponse struct {
	ID           string   `json:"id"`
	Repo         string   `json:"repo"`
	Issue        int      `json:"issue"`
	IssueTitle   string   `json:"issue_title,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	Outcome      string   `json:"outcome"`
	Attempts     int      `json:"attempts"`
	FailingGates []string `json:"failing_gates,omitempty"`
	Error        string   `json:"error,omitempty"`
	PRURL        string   `json:"pr_url,omitempty"`
	StartedAt    string   `json:"started_at,omitempty"`
	FinishedAt   string   `json:"finished_at,omitempty"`
}

// AttemptResponse is the API response for one attempt within a run
type AttemptResponse struct {
	Index    int            `json:"index"`
	Passed   bool           `json:"passed"`
	Feedback string         `json:"feedback,omitempty"`
	Gates    []GateResponse `json:"gates,omitempty"`
}

// GateResponse is the API response for one gate result
type GateResponse struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Duration string `json:"duration,omitempty"`
}

// RunDetailResponse is the API response for a single run with attempts and events
type RunDetailResponse struct {
	RunResponse
	Plan       string            `json:"plan,omitempty"`
	Review     string            `json:"review,omitempty"`
	ReviewNote string            `json:"review_note,omitempty"`
	AttemptLog []AttemptResponse `json:"attempt_log,omitempty"`
	Events     []EventResponse   `json:"events,omitempty"`
}

// EventResponse is the API response for a pipeline event
type EventResponse struct {
	State     string `json:"state"`
	Attempt   int    `json:"attempt,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// StatusResponse is the API response for overall pipeline health
type StatusResponse struct {
	TotalSucceeded int    `json:"total_succeeded"`
	TotalFailed    int    `json:"total_failed"`
	TotalAttempts  int    `json:"total_attempts"`
	AvgDuration    string `json:"avg_duration"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var resp StatusResponse
		if s.observer != nil {
			m := s.observer.GetMetrics()
			resp = StatusResponse{
				TotalSucceeded: m.TotalSucceeded,
				TotalFailed:    m.TotalFailed,
				TotalAttempts:  m.TotalAttempts,
				AvgDuration:    m.AvgDuration.Round(time.Second).String(),
			}
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runs, err := s.store.ListRuns(50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			resp = append(resp, runToResponse(run))
		}
		writeJSON(w, resp)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing run id")
			return
		}

		run, err := s.store.GetRun(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		detail := RunDetailResponse{
			RunResponse: runToResponse(run),
			Plan:        run.Plan,
			Review:      run.Review,
			ReviewNote:  run.ReviewNote,
		}
		for _, a := range run.Attempts {
			ar := AttemptResponse{
				Index:    a.Index,
				Passed:   a.Passed(),
				Feedback: a.Feedback,
			}
			for _, g := range a.Gates {
				ar.Gates = append(ar.Gates, GateResponse{
					Name:     g.Name,
					Passed:   g.Passed,
					Duration: g.Duration.Round(time.Millisecond).String(),
				})
			}
			detail.AttemptLog = append(detail.AttemptLog, ar)
		}

		if events, err := s.store.ListEvents(id); err == nil {
			for _, ev := range events {
				detail.Events = append(detail.Events, EventResponse{
					State:     string(ev.State),
					Attempt:   ev.Attempt,
					Message:   ev.Message,
					Timestamp: ev.Timestamp.Format(time.RFC3339),
				})
			}
		}

		writeJSON(w, detail)
	}
}

func runToResponse(run *domain.RunResult) RunResponse {
	resp := RunResponse{
		ID:           run.RunID,
		Repo:         run.Repo,
		Issue:        run.Issue.Number,
		IssueTitle:   run.Issue.Title,
		Branch:       run.Branch,
		Outcome:      string(run.Outcome),
		Attempts:     run.FinalAttempt,
		FailingGates: run.FailingGates,
		Error:        run.Error,
		PRURL:        run.PRURL,
	}
	if !run.StartedAt.IsZero() {
		resp.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if !run.FinishedAt.IsZero() {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return resp
}
