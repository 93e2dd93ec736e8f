package handler

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"

	"github.com/raystack/salt/log"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

const entityHandler = "httpHandler"

// ComposerHandler binds the HTTP surface to the Composer orchestrator.
type ComposerHandler struct {
	l           log.Logger
	creds       gcp.CredentialSource
	service     *composer.Service
	environment *composer.Client
}

func NewComposerHandler(l log.Logger, creds gcp.CredentialSource, service *composer.Service, environment *composer.Client) *ComposerHandler {
	return &ComposerHandler{
		l:           l,
		creds:       creds,
		service:     service,
		environment: environment,
	}
}

// queryParam validates one required query parameter against its input
// pattern; violations reject the request before any credential work.
func queryParam(r *http.Request, name string, pattern *regexp.Regexp) (string, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return "", errors.InvalidArgument(entityHandler, "missing query parameter "+name)
	}
	if pattern != nil && !pattern.MatchString(value) {
		return "", errors.InvalidArgument(entityHandler, "malformed query parameter "+name)
	}
	return value, nil
}

func (h *ComposerHandler) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	envs, err := h.environment.ListEnvironments(r.Context(), creds)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, envs)
}

func (h *ComposerHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var job scheduler.JobDescription
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(h.l, w, errors.InvalidArgument(entityHandler, "malformed job payload: "+err.Error()))
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
	if err := h.service.CreateJob(r.Context(), creds, &job); err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "scheduled", "dag_id": job.DagID})
}

func (h *ComposerHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.ListJobs(r.Context(), creds, env)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *ComposerHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	status := r.URL.Query().Get("status")
	if status != "true" && status != "false" {
		writeError(h.l, w, errors.InvalidArgument(entityHandler, "status must be true or false"))
		return
	}

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	if err := h.service.UpdateJob(r.Context(), creds, env, dagID, status == "true"); err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, map[string]int{"status": 0})
}

func (h *ComposerHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	// a delete issued from the listing page skips the airflow database
	// cleanup since the scheduler prunes vanished DAGs on its own
	cascade := r.URL.Query().Get("from_page") == ""

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	if err := h.service.DeleteJob(r.Context(), creds, env, dagID, cascade); err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, map[string]int{"status": 0})
}

func (h *ComposerHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.TriggerJob(r.Context(), creds, env, dagID)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *ComposerHandler) ListDagRuns(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	query := r.URL.Query()

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.ListDagRuns(r.Context(), creds, env, dagID,
		query.Get("start_date"), query.Get("end_date"), query.Get("offset"))
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *ComposerHandler) ListTaskInstances(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagRunID, err := queryParam(r, "dag_run_id", scheduler.DagRunIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.ListTaskInstances(r.Context(), creds, env, dagID, dagRunID)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *ComposerHandler) GetTaskLogs(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagRunID, err := queryParam(r, "dag_run_id", scheduler.DagRunIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	taskID, err := queryParam(r, "task_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	tryNumber, err := strconv.Atoi(r.URL.Query().Get("try_number"))
	if err != nil || tryNumber < 1 {
		writeError(h.l, w, errors.InvalidArgument(entityHandler, "try_number must be a positive integer"))
		return
	}

	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	content, err := h.service.GetTaskLogs(r.Context(), creds, env, dagID, dagRunID, taskID, tryNumber)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, map[string]string{"content": content})
}

func (h *ComposerHandler) ListImportErrors(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	body, err := h.service.ListImportErrors(r.Context(), creds, env)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeRaw(w, body)
}

func (h *ComposerHandler) EditJob(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	fields, err := h.service.EditJob(r.Context(), creds, env, dagID)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	writeJSON(w, fields)
}

func (h *ComposerHandler) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	env, err := queryParam(r, "composer", scheduler.EnvironmentPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagID, err := queryParam(r, "dag_id", scheduler.DagIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	dagRunID, err := queryParam(r, "dag_run_id", scheduler.DagRunIDPattern)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	// the download contract is numeric: 0 on success, 1 on any failure
	status, err := h.service.DownloadOutput(r.Context(), creds, env, dagID, dagRunID)
	if err != nil {
		h.l.Error("failed to download output", "dag_id", dagID, "err", err)
		status = 1
	}
	writeJSON(w, map[string]int{"status": status})
}
