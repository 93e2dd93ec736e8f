package handler_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raystack/salt/log"
	"github.com/stretchr/testify/assert"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/bucket"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer/dag"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/server/handler"
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

type staticCreds struct{}

func (staticCreds) Get(_ context.Context) (gcp.Credentials, error) {
	return gcp.Credentials{
		ProjectID:   "proj-1",
		Region:      "us-central1",
		AccessToken: "tok",
		Email:       "dev@example.com",
	}, nil
}

type memBucket struct {
	*blob.Bucket
}

func (memBucket) Close() error { return nil }

type memFactory struct {
	bkt *blob.Bucket
}

func (f *memFactory) New(_ context.Context, _ string) (bucket.Bucket, error) {
	return memBucket{f.bkt}, nil
}

const environmentBody = `{
	"config": {"airflowUri": "https://airflow.example", "dagGcsPrefix": "gs://env-bucket/dags"},
	"storageConfig": {"bucket": "env-bucket"}
}`

func wiredHandler(t *testing.T, httpClient composer.HTTPClient, bkt *blob.Bucket) *handler.ComposerHandler {
	t.Helper()
	compiler, err := dag.NewCompiler()
	assert.Nil(t, err)
	compiler.Now = func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }
	compiler.NewBatchID = func() string { return "batch-fixed" }

	resolver := gcp.NewResolver(nil)
	environments := composer.NewClient(httpClient, resolver)
	service := composer.NewService(
		log.NewNoop(),
		environments,
		composer.NewAirflowClient(httpClient),
		&memFactory{bkt: bkt},
		compiler,
	)
	return handler.NewComposerHandler(log.NewNoop(), staticCreds{}, service, environments)
}

func TestStatusContract(t *testing.T) {
	ctx := context.Background()

	t.Run("delete answers numeric zero", func(t *testing.T) {
		bkt := memblob.OpenBucket(nil)
		defer bkt.Close()
		assert.Nil(t, bkt.WriteAll(ctx, "dags/dag_j1.py", []byte("dag"), nil))

		h := wiredHandler(t, &MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				if strings.Contains(req.URL.Path, "/environments/") {
					return jsonResponse(200, environmentBody), nil
				}
				assert.Equal(t, http.MethodDelete, req.Method)
				return jsonResponse(200, `{}`), nil
			},
		}, bkt)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete,
			"/api/scheduler/deleteJobScheduler?composer=env-a&dag_id=j1", nil)
		h.DeleteJob(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": 0}`, rec.Body.String())
	})

	t.Run("pause and unpause answer numeric zero", func(t *testing.T) {
		bkt := memblob.OpenBucket(nil)
		defer bkt.Close()

		var patched string
		h := wiredHandler(t, &MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				if strings.Contains(req.URL.Path, "/environments/") {
					return jsonResponse(200, environmentBody), nil
				}
				payload, _ := io.ReadAll(req.Body)
				patched = string(payload)
				return jsonResponse(200, `{}`), nil
			},
		}, bkt)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/api/scheduler/updateJobScheduler?composer=env-a&dag_id=j1&status=false", nil)
		h.UpdateJob(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": 0}`, rec.Body.String())
		assert.JSONEq(t, `{"is_paused": true}`, patched)

		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost,
			"/api/scheduler/updateJobScheduler?composer=env-a&dag_id=j1&status=true", nil)
		h.UpdateJob(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": 0}`, rec.Body.String())
		assert.JSONEq(t, `{"is_paused": false}`, patched)
	})

	t.Run("failed download answers numeric one", func(t *testing.T) {
		// empty bucket, the output notebook is missing
		bkt := memblob.OpenBucket(nil)
		defer bkt.Close()

		h := wiredHandler(t, &MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				return jsonResponse(200, environmentBody), nil
			},
		}, bkt)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/api/scheduler/downloadOutput?composer=env-a&dag_id=j1&dag_run_id=run-1", nil)
		h.DownloadOutput(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": 1}`, rec.Body.String())
	})
}
