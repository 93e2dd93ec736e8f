package vertex_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/raystack/salt/log"
	"github.com/stretchr/testify/assert"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/core/scheduler"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/bucket"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/vertex"
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

type fakeAdmin struct {
	ensured []string
}

func (a *fakeAdmin) EnsureBucket(_ context.Context, _, name string) error {
	a.ensured = append(a.ensured, name)
	return nil
}

func testCredentials() gcp.Credentials {
	return gcp.Credentials{ProjectID: "proj-1", Region: "us-central1", AccessToken: "tok"}
}

func testService(httpClient vertex.HTTPClient, bkt *blob.Bucket, admin *fakeAdmin) *vertex.Service {
	return vertex.NewService(
		log.NewNoop(),
		vertex.NewClient(httpClient, gcp.NewResolver(nil)),
		&memFactory{bkt: bkt},
		admin,
	)
}

func TestCreateSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("posts a run once schedule for an empty cron", func(t *testing.T) {
		bkt := memblob.OpenBucket(nil)
		defer bkt.Close()
		admin := &fakeAdmin{}

		var posted map[string]any
		service := testService(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodPost, req.Method)
				assert.Equal(t, "us-central1-aiplatform.googleapis.com", req.URL.Host)
				assert.Equal(t, "/v1/projects/proj-1/locations/us-central1/schedules", req.URL.Path)
				payload, _ := io.ReadAll(req.Body)
				assert.Nil(t, json.Unmarshal(payload, &posted))
				return jsonResponse(200, `{"name": "projects/proj-1/locations/us-central1/schedules/123"}`), nil
			},
		}, bkt, admin)

		job := &scheduler.VertexJobDescription{
			InputFilename:      "gs://schedule-bucket/v1/n.ipynb",
			DisplayName:        "v1",
			MachineType:        "n1-standard-4",
			KernelName:         "python3",
			CloudStorageBucket: "schedule-bucket",
			MaxRunCount:        "1",
			TimeZone:           "UTC",
			Parameters:         []string{"team:data"},
		}
		_, err := service.CreateSchedule(ctx, testCredentials(), job)
		assert.Nil(t, err)

		assert.Equal(t, []string{"schedule-bucket"}, admin.ensured)
		assert.Equal(t, "* * * * *", posted["cron"])
		assert.Equal(t, "1", posted["maxConcurrentRunCount"])
		assert.Equal(t, "1", posted["maxRunCount"])

		request := posted["createNotebookExecutionJobRequest"].(map[string]any)
		execJob := request["notebookExecutionJob"].(map[string]any)
		assert.Equal(t, "gs://schedule-bucket", execJob["gcsOutputUri"])
		assert.Equal(t, map[string]any{"team": "data"}, execJob["labels"])
		source := execJob["gcsNotebookSource"].(map[string]any)
		assert.Equal(t, "gs://schedule-bucket/v1/n.ipynb", source["uri"])
	})

	t.Run("prefixes the cron with a non UTC zone", func(t *testing.T) {
		bkt := memblob.OpenBucket(nil)
		defer bkt.Close()

		var posted vertex.Schedule
		service := testService(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				payload, _ := io.ReadAll(req.Body)
				assert.Nil(t, json.Unmarshal(payload, &posted))
				return jsonResponse(200, `{}`), nil
			},
		}, bkt, &fakeAdmin{})

		job := &scheduler.VertexJobDescription{
			InputFilename:      "gs://schedule-bucket/v1/n.ipynb",
			DisplayName:        "v1",
			MachineType:        "n1-standard-4",
			KernelName:         "python3",
			CloudStorageBucket: "schedule-bucket",
			ScheduleValue:      "30 9 * * *",
			TimeZone:           "Asia/Kolkata",
		}
		_, err := service.CreateSchedule(ctx, testCredentials(), job)
		assert.Nil(t, err)
		assert.Equal(t, "TZ=Asia/Kolkata 30 9 * * *", posted.Cron)
	})

	t.Run("stages a local notebook with its pointer object", func(t *testing.T) {
		local := t.TempDir() + "/n.ipynb"
		assert.Nil(t, os.WriteFile(local, []byte(`{"cells": []}`), 0o600))

		bkt := memblob.OpenBucket(nil)
		defer bkt.Close()

		var posted vertex.Schedule
		service := testService(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				payload, _ := io.ReadAll(req.Body)
				assert.Nil(t, json.Unmarshal(payload, &posted))
				return jsonResponse(200, `{}`), nil
			},
		}, bkt, &fakeAdmin{})

		job := &scheduler.VertexJobDescription{
			InputFilename:      local,
			DisplayName:        "v1",
			MachineType:        "n1-standard-4",
			KernelName:         "python3",
			CloudStorageBucket: "schedule-bucket",
		}
		_, err := service.CreateSchedule(ctx, testCredentials(), job)
		assert.Nil(t, err)

		staged, err := bkt.Exists(ctx, "v1/n.ipynb")
		assert.Nil(t, err)
		assert.True(t, staged)

		pointer, err := bkt.ReadAll(ctx, "v1/v1.json")
		assert.Nil(t, err)
		assert.Equal(t, "gs://schedule-bucket/v1/n.ipynb", string(pointer))
		assert.Equal(t, "gs://schedule-bucket/v1/n.ipynb",
			posted.CreateNotebookExecutionJobRequest.NotebookExecutionJob.GcsNotebookSource.URI)
	})
}

func TestListSchedules(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)
	defer bkt.Close()

	service := testService(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/v1/projects/proj-1/locations/us-central1/schedules", req.URL.Path)
			assert.Equal(t, "50", req.URL.Query().Get("pageSize"))
			return jsonResponse(200, `{"schedules": [
				{"name": "s/1", "cron": "* * * * *", "maxRunCount": "1"},
				{"name": "s/2", "cron": "TZ=Asia/Kolkata 0 9 * * *"},
				{"name": "s/3", "cron": "* * * * *"}
			]}`), nil
		},
	}, bkt, &fakeAdmin{})

	listing, err := service.ListSchedules(ctx, testCredentials(), "50", "")
	assert.Nil(t, err)

	schedules := listing["schedules"].([]any)
	assert.Len(t, schedules, 3)
	assert.Equal(t, "run once", schedules[0].(map[string]any)["schedule"])
	assert.Equal(t, "at 09:00 every day (Asia/Kolkata)", schedules[1].(map[string]any)["schedule"])
	// without the run cap an every-minute cron keeps its description
	assert.Equal(t, "every minute", schedules[2].(map[string]any)["schedule"])
}

func TestTriggerSchedule(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)
	defer bkt.Close()

	scheduleBody := `{
		"name": "projects/proj-1/locations/us-central1/schedules/123",
		"displayName": "v1",
		"cron": "* * * * *",
		"createNotebookExecutionJobRequest": {
			"parent": "projects/proj-1/locations/us-central1",
			"notebookExecutionJob": {
				"displayName": "v1",
				"gcsNotebookSource": {"uri": "gs://schedule-bucket/v1/n.ipynb"},
				"gcsOutputUri": "gs://schedule-bucket",
				"kernelName": "python3"
			}
		}
	}`

	var posted map[string]any
	service := testService(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodGet {
				assert.Contains(t, req.URL.Path, "/schedules/123")
				return jsonResponse(200, scheduleBody), nil
			}
			assert.Equal(t, http.MethodPost, req.Method)
			assert.True(t, strings.HasSuffix(req.URL.Path, "/notebookExecutionJobs"))
			payload, _ := io.ReadAll(req.Body)
			assert.Nil(t, json.Unmarshal(payload, &posted))
			return jsonResponse(200, `{"name": "projects/proj-1/locations/us-central1/notebookExecutionJobs/9"}`), nil
		},
	}, bkt, &fakeAdmin{})

	_, err := service.TriggerSchedule(ctx, testCredentials(), "123")
	assert.Nil(t, err)

	assert.Equal(t, "projects/proj-1/locations/us-central1/schedules/123", posted["scheduleResourceName"])
	assert.Equal(t, "v1", posted["displayName"])
	source := posted["gcsNotebookSource"].(map[string]any)
	assert.Equal(t, "gs://schedule-bucket/v1/n.ipynb", source["uri"])
}

func TestUpdateSchedule(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)
	defer bkt.Close()

	var patchedPath, mask string
	var posted vertex.Schedule
	service := testService(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPatch, req.Method)
			patchedPath = req.URL.Path
			mask = req.URL.Query().Get("updateMask")
			payload, _ := io.ReadAll(req.Body)
			assert.Nil(t, json.Unmarshal(payload, &posted))
			return jsonResponse(200, `{}`), nil
		},
	}, bkt, &fakeAdmin{})

	payload := map[string]any{
		"displayName":           "v1",
		"maxConcurrentRunCount": "1",
		"cron":                  "0 9 * * *",
		"maxRunCount":           "5",
	}
	_, err := service.UpdateSchedule(ctx, testCredentials(), "123", payload)
	assert.Nil(t, err)

	assert.Equal(t, "/v1/projects/proj-1/locations/us-central1/schedules/123", patchedPath)
	assert.Equal(t, "cron,maxRunCount", mask)
	assert.Equal(t, "0 9 * * *", posted.Cron)
	assert.Equal(t, "5", posted.MaxRunCount)
}

func TestUpdateMask(t *testing.T) {
	t.Run("lists every key except the identifying ones", func(t *testing.T) {
		mask := vertex.UpdateMask(map[string]any{
			"displayName":           "v1",
			"maxConcurrentRunCount": "1",
			"cron":                  "0 9 * * *",
			"endTime":               "2024-12-31T00:00:00Z",
			"maxRunCount":           "5",
		})
		assert.Equal(t, "cron,endTime,maxRunCount", mask)
	})
	t.Run("is empty for identifying fields only", func(t *testing.T) {
		assert.Equal(t, "", vertex.UpdateMask(map[string]any{"displayName": "v1"}))
	})
}

func TestScheduleStateOperations(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)
	defer bkt.Close()

	t.Run("pause accepts an empty 204 response", func(t *testing.T) {
		service := testService(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				assert.True(t, strings.HasSuffix(req.URL.Path, "/schedules/123:pause"))
				return jsonResponse(204, ""), nil
			},
		}, bkt, &fakeAdmin{})
		assert.Nil(t, service.PauseSchedule(ctx, testCredentials(), "123"))
	})

	t.Run("resume accepts an empty 204 response", func(t *testing.T) {
		service := testService(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				assert.True(t, strings.HasSuffix(req.URL.Path, "/schedules/123:resume"))
				return jsonResponse(204, ""), nil
			},
		}, bkt, &fakeAdmin{})
		assert.Nil(t, service.ResumeSchedule(ctx, testCredentials(), "123"))
	})

	t.Run("delete accepts an empty 204 response", func(t *testing.T) {
		service := testService(&MockHttpClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodDelete, req.Method)
				return jsonResponse(204, ""), nil
			},
		}, bkt, &fakeAdmin{})
		assert.Nil(t, service.DeleteSchedule(ctx, testCredentials(), "123"))
	})
}

func TestListNotebookExecutionJobs(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)
	defer bkt.Close()

	service := testService(&MockHttpClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.True(t, strings.HasSuffix(req.URL.Path, "/notebookExecutionJobs"))
			query := req.URL.Query()
			assert.Equal(t, `schedule="projects/proj-1/locations/us-central1/schedules/123"`, query.Get("filter"))
			assert.Equal(t, "createTime desc", query.Get("orderBy"))
			return jsonResponse(200, `{"notebookExecutionJobs": []}`), nil
		},
	}, bkt, &fakeAdmin{})

	_, err := service.ListNotebookExecutionJobs(ctx, testCredentials(), "123", "", "")
	assert.Nil(t, err)
}
