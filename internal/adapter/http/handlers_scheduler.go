package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/workitem"
	"github.com/Strob0t/bizops/internal/port/messagequeue"
	"github.com/Strob0t/bizops/internal/service"
)

type transitionRequest struct {
	Status workitem.Status `json:"status"`
}

type runResponse struct {
	At     time.Time            `json:"at"`
	Runs   []schedule.TenantRun `json:"runs"`
	Failed int                  `json:"failed"`
}

func newRunResponse(at time.Time, runs []schedule.TenantRun) runResponse {
	resp := runResponse{At: at, Runs: runs}
	if resp.Runs == nil {
		resp.Runs = []schedule.TenantRun{}
	}
	for i := range runs {
		if runs[i].Failed() {
			resp.Failed++
		}
	}
	return resp
}

// CreateDefinition handles POST /api/v1/tenants/{tenantID}/definitions
func (h *Handlers) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workitem.CreateDefinitionRequest](w, r)
	if !ok {
		return
	}
	d, err := h.WorkItems.CreateDefinition(r.Context(), urlParam(r, "tenantID"), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetWorkItem handles GET /api/v1/tenants/{tenantID}/work-items/{id}
func (h *Handlers) GetWorkItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.WorkItems.Get(r.Context(), urlParam(r, "tenantID"), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "work item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// TransitionWorkItem handles POST /api/v1/tenants/{tenantID}/work-items/{id}/status
func (h *Handlers) TransitionWorkItem(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[transitionRequest](w, r)
	if !ok {
		return
	}
	it, err := h.WorkItems.Transition(r.Context(), urlParam(r, "tenantID"), urlParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, err, "work item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// GetDigest handles GET /api/v1/tenants/{tenantID}/digest?date=YYYY-MM-DD.
// Without a date the digest covers today in the tenant's zone.
func (h *Handlers) GetDigest(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	tenantID := urlParam(r, "tenantID")
	if date == nil {
		t, err := h.Tenants.Get(r.Context(), tenantID)
		if err != nil {
			writeDomainError(w, err, "tenant not found")
			return
		}
		today := workitem.Day(time.Now(), t.Location())
		date = &today
	}

	d, err := h.Scheduler.BuildDigest(r.Context(), tenantID, *date)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RunScheduler handles POST /api/v1/internal/scheduler/run. The body is
// optional; an empty body runs today for every enabled tenant. The run
// outlives a disconnecting caller.
func (h *Handlers) RunScheduler(w http.ResponseWriter, r *http.Request) {
	var p messagequeue.RunRequestPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := service.ParseRunRequest(p.Date, p.TenantID)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}

	runs, err := h.Runner.Run(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	at, _ := h.Runner.LastRun()
	writeJSON(w, http.StatusOK, newRunResponse(at, runs))
}

// LastRun handles GET /api/v1/internal/scheduler/runs/last
func (h *Handlers) LastRun(w http.ResponseWriter, _ *http.Request) {
	at, runs := h.Runner.LastRun()
	if at.IsZero() {
		writeError(w, http.StatusNotFound, "no run recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(at, runs))
}
