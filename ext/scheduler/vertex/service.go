package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/raystack/salt/log"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/bucket"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/lib/cron"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/telemetry"
)

// BucketAdmin is the slice of bucket administration the orchestrator
// needs to provision the fixed schedule bucket.
type BucketAdmin interface {
	EnsureBucket(ctx context.Context, projectID, name string) error
}

// Service orchestrates Vertex AI notebook execution schedules. The
// notebook is staged in a caller-chosen bucket and referenced from the
// schedule body; Vertex owns all run state afterwards.
type Service struct {
	l log.Logger

	client  *Client
	buckets bucket.Factory
	admin   BucketAdmin
}

func NewService(l log.Logger, client *Client, buckets bucket.Factory, admin BucketAdmin) *Service {
	return &Service{
		l:       l,
		client:  client,
		buckets: buckets,
		admin:   admin,
	}
}

// CreateSchedule provisions the bucket, stages the notebook and its
// pointer object, then posts the schedule.
func (s *Service) CreateSchedule(ctx context.Context, creds gcp.Credentials, job *scheduler.VertexJobDescription) ([]byte, error) {
	spanCtx, span := startChildSpan(ctx, "CreateSchedule")
	defer span.End()

	if err := s.admin.EnsureBucket(spanCtx, creds.ProjectID, job.CloudStorageBucket); err != nil {
		return nil, err
	}

	notebookURI, err := s.stageNotebook(spanCtx, job)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ScheduleFrom(job, s.client.parent(creds), notebookURI))
	if err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to marshal schedule body", err)
	}

	resp, err := s.client.Invoke(spanCtx, vertexRequest{
		path:   s.client.parent(creds) + "/schedules",
		method: http.MethodPost,
		body:   body,
	}, creds)
	if err != nil {
		return nil, err
	}

	telemetry.NewCounter("notebook_schedules_created_total", map[string]string{
		"scheduler": "vertex",
	}).Inc()
	s.l.Info("created vertex schedule", "display_name", job.DisplayName)
	return resp, nil
}

// stageNotebook uploads the input notebook next to a pointer object
// naming its URI, so the UI can find the source without listing.
// Inputs already on object storage are referenced in place.
func (s *Service) stageNotebook(ctx context.Context, job *scheduler.VertexJobDescription) (string, error) {
	if bucket.IsGSPath(job.InputFilename) {
		return job.InputFilename, nil
	}

	bkt, err := s.buckets.New(ctx, job.CloudStorageBucket)
	if err != nil {
		return "", err
	}
	defer bkt.Close()

	key := NotebookKey(job.DisplayName, job.InputFilename)
	if err := bucket.UploadFile(ctx, bkt, key, job.InputFilename); err != nil {
		return "", err
	}

	uri := fmt.Sprintf("gs://%s/%s", job.CloudStorageBucket, key)
	if err := bkt.WriteAll(ctx, PointerKey(job.DisplayName), []byte(uri), nil); err != nil {
		return "", errors.Wrap(bucket.EntityStorage, "failed to write notebook pointer", err)
	}
	return uri, nil
}

// ListSchedules returns the raw Vertex listing with each schedule's
// cron replaced by a readable description. A cron of every minute
// capped at one run reads as "run once".
func (s *Service) ListSchedules(ctx context.Context, creds gcp.Credentials, pageSize, pageToken string) (map[string]any, error) {
	query := url.Values{}
	if pageSize != "" {
		query.Set("pageSize", pageSize)
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	resp, err := s.client.Invoke(ctx, vertexRequest{
		path:   s.client.parent(creds) + "/schedules",
		method: http.MethodGet,
		query:  query,
	}, creds)
	if err != nil {
		return nil, err
	}

	var listing map[string]any
	if len(resp) > 0 {
		if err := json.Unmarshal(resp, &listing); err != nil {
			return nil, errors.Wrap(EntityVertex, "failed to decode schedule listing", err)
		}
	}
	if listing == nil {
		listing = map[string]any{}
	}

	schedules, _ := listing["schedules"].([]any)
	for _, item := range schedules {
		schedule, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cronExpr, _ := schedule["cron"].(string)
		maxRunCount, _ := schedule["maxRunCount"].(string)
		schedule["schedule"] = describeSchedule(cronExpr, maxRunCount)
	}
	if schedules == nil {
		listing["schedules"] = []any{}
	}
	return listing, nil
}

// describeSchedule turns the stored cron into display text.
func describeSchedule(cronExpr, maxRunCount string) string {
	_, normalized := cron.SplitTimezone(cronExpr)
	if maxRunCount == "1" && strings.Join(strings.Fields(normalized), " ") == "* * * * *" {
		return "run once"
	}
	return cron.Describe(cronExpr)
}

func (s *Service) GetSchedule(ctx context.Context, creds gcp.Credentials, scheduleID string) ([]byte, error) {
	return s.client.Invoke(ctx, vertexRequest{
		path:   s.schedulePath(creds, scheduleID),
		method: http.MethodGet,
	}, creds)
}

func (s *Service) PauseSchedule(ctx context.Context, creds gcp.Credentials, scheduleID string) error {
	_, err := s.client.Invoke(ctx, vertexRequest{
		path:   s.schedulePath(creds, scheduleID) + ":pause",
		method: http.MethodPost,
		body:   []byte(`{}`),
	}, creds)
	return err
}

func (s *Service) ResumeSchedule(ctx context.Context, creds gcp.Credentials, scheduleID string) error {
	_, err := s.client.Invoke(ctx, vertexRequest{
		path:   s.schedulePath(creds, scheduleID) + ":resume",
		method: http.MethodPost,
		body:   []byte(`{}`),
	}, creds)
	return err
}

func (s *Service) DeleteSchedule(ctx context.Context, creds gcp.Credentials, scheduleID string) error {
	_, err := s.client.Invoke(ctx, vertexRequest{
		path:   s.schedulePath(creds, scheduleID),
		method: http.MethodDelete,
	}, creds)
	if err != nil {
		return err
	}
	s.l.Info("deleted vertex schedule", "schedule", scheduleID)
	return nil
}

// TriggerSchedule runs the schedule immediately by re-posting its
// embedded execution job, stamped with the schedule it came from.
func (s *Service) TriggerSchedule(ctx context.Context, creds gcp.Credentials, scheduleID string) ([]byte, error) {
	spanCtx, span := startChildSpan(ctx, "TriggerSchedule")
	defer span.End()

	resp, err := s.client.Invoke(spanCtx, vertexRequest{
		path:   s.schedulePath(creds, scheduleID),
		method: http.MethodGet,
	}, creds)
	if err != nil {
		return nil, err
	}

	var schedule Schedule
	if err := json.Unmarshal(resp, &schedule); err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to decode schedule "+scheduleID, err)
	}
	if schedule.CreateNotebookExecutionJobRequest == nil || schedule.CreateNotebookExecutionJobRequest.NotebookExecutionJob == nil {
		return nil, errors.FailedPrecondition(EntityVertex, "schedule "+scheduleID+" carries no notebook execution job")
	}

	job := schedule.CreateNotebookExecutionJobRequest.NotebookExecutionJob
	job.ScheduleResourceName = schedule.Name

	body, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to marshal execution job", err)
	}
	return s.client.Invoke(spanCtx, vertexRequest{
		path:   s.client.parent(creds) + "/notebookExecutionJobs",
		method: http.MethodPost,
		body:   body,
	}, creds)
}

// UpdateSchedule patches the schedule with the fields present in the
// payload. The update mask lists every payload key except displayName
// and maxConcurrentRunCount, which identify rather than configure.
func (s *Service) UpdateSchedule(ctx context.Context, creds gcp.Credentials, scheduleID string, payload map[string]any) ([]byte, error) {
	var patch Schedule
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &patch,
	})
	if err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to build payload decoder", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return nil, errors.InvalidArgument(EntityVertex, "malformed schedule payload: "+err.Error())
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to marshal schedule patch", err)
	}

	return s.client.Invoke(ctx, vertexRequest{
		path:   s.schedulePath(creds, scheduleID),
		method: http.MethodPatch,
		query:  url.Values{"updateMask": []string{UpdateMask(payload)}},
		body:   body,
	}, creds)
}

// UpdateMask collects the payload keys to patch, sorted for stable
// request lines.
func UpdateMask(payload map[string]any) string {
	var fields []string
	for key := range payload {
		if key == "displayName" || key == "maxConcurrentRunCount" {
			continue
		}
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

// ListNotebookExecutionJobs returns the runs spawned by one schedule,
// newest first.
func (s *Service) ListNotebookExecutionJobs(ctx context.Context, creds gcp.Credentials, scheduleID, pageSize, pageToken string) ([]byte, error) {
	query := url.Values{}
	query.Set("filter", fmt.Sprintf("schedule=%q", s.schedulePath(creds, scheduleID)))
	query.Set("orderBy", "createTime desc")
	if pageSize != "" {
		query.Set("pageSize", pageSize)
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	return s.client.Invoke(ctx, vertexRequest{
		path:   s.client.parent(creds) + "/notebookExecutionJobs",
		method: http.MethodGet,
		query:  query,
	}, creds)
}

// schedulePath accepts either a bare schedule id or a fully qualified
// resource name from a previous response.
func (s *Service) schedulePath(creds gcp.Credentials, scheduleID string) string {
	if strings.HasPrefix(scheduleID, "projects/") {
		return scheduleID
	}
	return s.client.parent(creds) + "/schedules/" + scheduleID
}
