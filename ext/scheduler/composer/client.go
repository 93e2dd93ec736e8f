package composer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

const EntityAirflow = "airflow"

type airflowRequest struct {
	path   string
	method string
	query  url.Values
	body   []byte
}

// AirflowAuth addresses one environment's Airflow; Composer fronts the
// REST API with a Google-token-authenticated proxy.
type AirflowAuth struct {
	Host  string
	Token string
}

type AirflowClient struct {
	client HTTPClient
}

func NewAirflowClient(client HTTPClient) *AirflowClient {
	return &AirflowClient{client: client}
}

func (ac *AirflowClient) Invoke(ctx context.Context, r airflowRequest, auth AirflowAuth) ([]byte, error) {
	spanCtx, span := startChildSpan(ctx, "airflow/"+r.method+"/"+r.path)
	defer span.End()

	endpoint := buildEndPoint(auth.Host, r.path, r.query)
	request, err := http.NewRequestWithContext(spanCtx, r.method, endpoint, bytes.NewBuffer(r.body))
	if err != nil {
		return nil, errors.Wrap(EntityAirflow, "failed to build http request for "+endpoint, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+auth.Token)

	httpResp, respErr := ac.client.Do(request)
	if respErr != nil {
		return nil, errors.Wrap(EntityAirflow, "failed to call airflow "+endpoint, respErr)
	}
	body, err := parseResponse(httpResp)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode == http.StatusNotFound {
		return nil, errors.NotFound(EntityAirflow, fmt.Sprintf("%s returned 404: %s", endpoint, string(body)))
	}
	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Upstream(EntityAirflow,
			fmt.Sprintf("status code received %d on calling %s: %s", httpResp.StatusCode, endpoint, string(body)), nil)
	}
	return body, nil
}

func parseResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return body, errors.Wrap(EntityAirflow, "failed to read airflow response", err)
	}
	return body, nil
}

func buildEndPoint(host, path string, query url.Values) string {
	endpoint := strings.TrimRight(host, "/") + "/api/v1/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// ListDags returns the raw listing of DAGs carrying the given tag.
func (ac *AirflowClient) ListDags(ctx context.Context, auth AirflowAuth, tag string) ([]byte, error) {
	return ac.Invoke(ctx, airflowRequest{
		path:   "dags",
		method: http.MethodGet,
		query:  url.Values{"tags": []string{tag}},
	}, auth)
}

// UpdateDagPaused flips the paused flag of a DAG.
func (ac *AirflowClient) UpdateDagPaused(ctx context.Context, auth AirflowAuth, dagID string, paused bool) error {
	body := []byte(`{"is_paused": false}`)
	if paused {
		body = []byte(`{"is_paused": true}`)
	}
	_, err := ac.Invoke(ctx, airflowRequest{
		path:   "dags/" + dagID,
		method: http.MethodPatch,
		body:   body,
	}, auth)
	return err
}

// DeleteDag removes the DAG from airflow's metadata database. The blob
// removal is handled separately; a missing DAG here is tolerated by
// the caller.
func (ac *AirflowClient) DeleteDag(ctx context.Context, auth AirflowAuth, dagID string) error {
	_, err := ac.Invoke(ctx, airflowRequest{
		path:   "dags/" + dagID,
		method: http.MethodDelete,
	}, auth)
	return err
}

// ListDagRuns pages through runs of one DAG inside a date window.
func (ac *AirflowClient) ListDagRuns(ctx context.Context, auth AirflowAuth, dagID, startDate, endDate, offset string) ([]byte, error) {
	query := url.Values{}
	if startDate != "" {
		query.Set("execution_date_gte", startDate)
	}
	if endDate != "" {
		query.Set("execution_date_lte", endDate)
	}
	if offset != "" {
		query.Set("offset", offset)
	}
	return ac.Invoke(ctx, airflowRequest{
		path:   "dags/" + dagID + "/dagRuns",
		method: http.MethodGet,
		query:  query,
	}, auth)
}

// ListTaskInstances returns the task instances of one DAG run.
func (ac *AirflowClient) ListTaskInstances(ctx context.Context, auth AirflowAuth, dagID, dagRunID string) ([]byte, error) {
	return ac.Invoke(ctx, airflowRequest{
		path:   "dags/" + dagID + "/dagRuns/" + url.PathEscape(dagRunID) + "/taskInstances",
		method: http.MethodGet,
	}, auth)
}

// GetTaskLogs fetches the log text of one task try.
func (ac *AirflowClient) GetTaskLogs(ctx context.Context, auth AirflowAuth, dagID, dagRunID, taskID string, tryNumber int) (string, error) {
	body, err := ac.Invoke(ctx, airflowRequest{
		path: fmt.Sprintf("dags/%s/dagRuns/%s/taskInstances/%s/logs/%d",
			dagID, url.PathEscape(dagRunID), taskID, tryNumber),
		method: http.MethodGet,
	}, auth)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// TriggerDag starts a fresh run with an empty conf.
func (ac *AirflowClient) TriggerDag(ctx context.Context, auth AirflowAuth, dagID string) ([]byte, error) {
	return ac.Invoke(ctx, airflowRequest{
		path:   "dags/" + dagID + "/dagRuns",
		method: http.MethodPost,
		body:   []byte(`{"conf": {}}`),
	}, auth)
}

// ListImportErrors surfaces DAG files the scheduler failed to import,
// newest first.
func (ac *AirflowClient) ListImportErrors(ctx context.Context, auth AirflowAuth) ([]byte, error) {
	return ac.Invoke(ctx, airflowRequest{
		path:   "importErrors",
		method: http.MethodGet,
		query:  url.Values{"order_by": []string{"-import_error_id"}},
	}, auth)
}

func startChildSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := otel.Tracer("scheduler/composer")

	return tracer.Start(ctx, name)
}
