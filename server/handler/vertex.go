package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/raystack/salt/log"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/vertex"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

// VertexHandler binds the HTTP surface to the Vertex orchestrator.
type VertexHandler struct {
	l       log.Logger
	creds   gcp.CredentialSource
	service *vertex.Service
}

func NewVertexHandler(l log.Logger, creds gcp.CredentialSource, service *vertex.Service) *VertexHandler {
	return &VertexHandler{l: l, creds: creds, service: service}
}

func (h *VertexHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var job scheduler.VertexJobDescription
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(h.l, w, errors.InvalidArgument(entityHandler, "malformed schedule payload: "+err.Error()))
		return
	}
	if err := job.Validate(); err != nil {
		writeError(h.l, w, err)
		return
	}

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.CreateSchedule(r.Context(), creds, &job)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *VertexHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	query := r.URL.Query()
	listing, err := h.service.ListSchedules(r.Context(), creds, query.Get("page_size"), query.Get("page_token"))
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, listing)
}

func (h *VertexHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleOp(w, r, h.service.GetSchedule)
}

func (h *VertexHandler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleStateOp(w, r, "paused", h.service.PauseSchedule)
}

func (h *VertexHandler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleStateOp(w, r, "resumed", h.service.ResumeSchedule)
}

func (h *VertexHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleStateOp(w, r, "deleted", h.service.DeleteSchedule)
}

func (h *VertexHandler) TriggerSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduleOp(w, r, h.service.TriggerSchedule)
}

func (h *VertexHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := queryParam(r, "schedule_id", nil)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(h.l, w, errors.InvalidArgument(entityHandler, "malformed schedule payload: "+err.Error()))
		return
	}

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.UpdateSchedule(r.Context(), creds, scheduleID, payload)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *VertexHandler) ListNotebookExecutionJobs(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := queryParam(r, "schedule_id", nil)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	query := r.URL.Query()
	body, err := h.service.ListNotebookExecutionJobs(r.Context(), creds, scheduleID,
		query.Get("page_size"), query.Get("page_token"))
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *VertexHandler) scheduleOp(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, creds gcp.Credentials, scheduleID string) ([]byte, error),
) {
	scheduleID, err := queryParam(r, "schedule_id", nil)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := op(r.Context(), creds, scheduleID)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *VertexHandler) scheduleStateOp(w http.ResponseWriter, r *http.Request, state string,
	op func(ctx context.Context, creds gcp.Credentials, scheduleID string) error,
) {
	scheduleID, err := queryParam(r, "schedule_id", nil)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	if err := op(r.Context(), creds, scheduleID); err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, map[string]string{"status": state, "schedule_id": scheduleID})
}
