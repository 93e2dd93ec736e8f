package composer_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

type MockHttpClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockHttpClient) Do(req *http.Request) (*http.Response, error) {
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	// default if none provided
	return &http.Response{}, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testAuth() composer.AirflowAuth {
	return composer.AirflowAuth{Host: "https://airflow.example", Token: "tok"}
}

func TestAirflowClientListDags(t *testing.T) {
	ctx := context.Background()
	client := composer.NewAirflowClient(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "https://airflow.example/api/v1/dags", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
			assert.Equal(t, "dataproc_jupyter_plugin", req.URL.Query().Get("tags"))
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			return jsonResponse(200, `{"dags": [], "total_entries": 0}`), nil
		},
	})

	body, err := client.ListDags(ctx, testAuth(), "dataproc_jupyter_plugin")
	assert.Nil(t, err)
	assert.Contains(t, string(body), "total_entries")
}

func TestAirflowClientUpdateDagPaused(t *testing.T) {
	ctx := context.Background()
	t.Run("sends is_paused false to run the dag", func(t *testing.T) {
		client := composer.NewAirflowClient(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodPatch, req.Method)
				assert.Equal(t, "/api/v1/dags/j1", req.URL.Path)
				payload, _ := io.ReadAll(req.Body)
				assert.JSONEq(t, `{"is_paused": false}`, string(payload))
				return jsonResponse(200, `{}`), nil
			},
		})
		assert.Nil(t, client.UpdateDagPaused(ctx, testAuth(), "j1", false))
	})
	t.Run("sends is_paused true to pause the dag", func(t *testing.T) {
		client := composer.NewAirflowClient(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				payload, _ := io.ReadAll(req.Body)
				assert.JSONEq(t, `{"is_paused": true}`, string(payload))
				return jsonResponse(200, `{}`), nil
			},
		})
		assert.Nil(t, client.UpdateDagPaused(ctx, testAuth(), "j1", true))
	})
}

func TestAirflowClientDeleteDag(t *testing.T) {
	ctx := context.Background()
	t.Run("maps a 404 to a not found error", func(t *testing.T) {
		client := composer.NewAirflowClient(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodDelete, req.Method)
				return jsonResponse(404, `{"title": "DAG not found"}`), nil
			},
		})
		err := client.DeleteDag(ctx, testAuth(), "gone")
		assert.NotNil(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrNotFound))
	})
	t.Run("maps other failures to upstream errors", func(t *testing.T) {
		client := composer.NewAirflowClient(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				return jsonResponse(500, `{"title": "boom"}`), nil
			},
		})
		err := client.DeleteDag(ctx, testAuth(), "j1")
		assert.NotNil(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrUpstream))
	})
}

func TestAirflowClientListDagRuns(t *testing.T) {
	ctx := context.Background()
	client := composer.NewAirflowClient(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/dags/j1/dagRuns", req.URL.Path)
			query := req.URL.Query()
			assert.Equal(t, "2024-03-01T00:00:00Z", query.Get("execution_date_gte"))
			assert.Equal(t, "2024-03-02T00:00:00Z", query.Get("execution_date_lte"))
			assert.Equal(t, "25", query.Get("offset"))
			return jsonResponse(200, `{"dag_runs": []}`), nil
		},
	})

	_, err := client.ListDagRuns(ctx, testAuth(), "j1", "2024-03-01T00:00:00Z", "2024-03-02T00:00:00Z", "25")
	assert.Nil(t, err)
}

func TestAirflowClientGetTaskLogs(t *testing.T) {
	ctx := context.Background()
	client := composer.NewAirflowClient(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Contains(t, req.URL.Path, "/taskInstances/submit_pyspark_job/logs/2")
			return jsonResponse(200, "log line one\nlog line two"), nil
		},
	})

	content, err := client.GetTaskLogs(ctx, testAuth(), "j1", "run-1", "submit_pyspark_job", 2)
	assert.Nil(t, err)
	assert.Equal(t, "log line one\nlog line two", content)
}

func TestAirflowClientTriggerDag(t *testing.T) {
	ctx := context.Background()
	client := composer.NewAirflowClient(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/api/v1/dags/j1/dagRuns", req.URL.Path)
			payload, _ := io.ReadAll(req.Body)
			assert.JSONEq(t, `{"conf": {}}`, string(payload))
			return jsonResponse(200, `{"dag_run_id": "manual__2024"}`), nil
		},
	})

	body, err := client.TriggerDag(ctx, testAuth(), "j1")
	assert.Nil(t, err)
	assert.Contains(t, string(body), "manual__2024")
}

func TestAirflowClientListImportErrors(t *testing.T) {
	ctx := context.Background()
	client := composer.NewAirflowClient(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/importErrors", req.URL.Path)
			assert.Equal(t, "-import_error_id", req.URL.Query().Get("order_by"))
			return jsonResponse(200, `{"import_errors": []}`), nil
		},
	})

	_, err := client.ListImportErrors(ctx, testAuth())
	assert.Nil(t, err)
}
