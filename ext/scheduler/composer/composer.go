package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

const EntityComposer = "composerEnvironment"

// HTTPClient is satisfied by *http.Client and by test doubles.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Environment is the slice of a Composer environment resource the
// scheduling engine needs: where Airflow answers and which bucket the
// DAGs live in. It is fetched per request, never cached.
type Environment struct {
	Name       string `json:"name"`
	AirflowURI string `json:"airflow_uri"`
	DagBucket  string `json:"bucket"`
}

type Client struct {
	httpClient HTTPClient
	resolver   *gcp.Resolver
}

func NewClient(httpClient HTTPClient, resolver *gcp.Resolver) *Client {
	return &Client{httpClient: httpClient, resolver: resolver}
}

func (c *Client) environmentsURL(creds gcp.Credentials) string {
	return fmt.Sprintf("%sv1/projects/%s/locations/%s/environments",
		c.resolver.Resolve("composer"), creds.ProjectID, creds.Region)
}

// DescribeEnvironment resolves the Airflow web URI and DAG bucket of a
// Composer environment.
func (c *Client) DescribeEnvironment(ctx context.Context, creds gcp.Credentials, envName string) (Environment, error) {
	endpoint := c.environmentsURL(creds) + "/" + envName
	body, status, err := c.get(ctx, creds, endpoint)
	if err != nil {
		return Environment{}, err
	}
	if status != http.StatusOK {
		return Environment{}, errors.NotFound(EntityComposer,
			fmt.Sprintf("environment %s lookup returned %d: %s", envName, status, string(body)))
	}

	var payload struct {
		Name   string `json:"name"`
		Config struct {
			AirflowURI   string `json:"airflowUri"`
			DagGcsPrefix string `json:"dagGcsPrefix"`
		} `json:"config"`
		StorageConfig struct {
			Bucket string `json:"bucket"`
		} `json:"storageConfig"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Environment{}, errors.Wrap(EntityComposer, "failed to decode environment "+envName, err)
	}
	if payload.Config.AirflowURI == "" {
		return Environment{}, errors.NotFound(EntityComposer, "environment "+envName+" has no airflow uri")
	}

	bucket := payload.StorageConfig.Bucket
	if bucket == "" {
		// older environments only expose the bucket through the dag prefix
		bucket = bucketFromDagPrefix(payload.Config.DagGcsPrefix)
	}
	if bucket == "" {
		return Environment{}, errors.NotFound(EntityComposer, "environment "+envName+" has no dag bucket")
	}

	return Environment{
		Name:       envName,
		AirflowURI: payload.Config.AirflowURI,
		DagBucket:  bucket,
	}, nil
}

// ListEnvironments returns the short names of all environments in the
// credential's project and region.
func (c *Client) ListEnvironments(ctx context.Context, creds gcp.Credentials) ([]string, error) {
	body, status, err := c.get(ctx, creds, c.environmentsURL(creds))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Upstream(EntityComposer,
			fmt.Sprintf("environment listing returned %d: %s", status, string(body)), nil)
	}
	if len(body) == 0 {
		return []string{}, nil
	}

	var payload struct {
		Environments []struct {
			Name string `json:"name"`
		} `json:"environments"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(EntityComposer, "failed to decode environment listing", err)
	}

	names := []string{}
	for _, env := range payload.Environments {
		parts := strings.Split(env.Name, "/")
		names = append(names, parts[len(parts)-1])
	}
	return names, nil
}

func (c *Client) get(ctx context.Context, creds gcp.Credentials, endpoint string) ([]byte, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, errors.Wrap(EntityComposer, "failed to build request for "+endpoint, err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, 0, errors.Wrap(EntityComposer, "failed to call "+endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(EntityComposer, "failed to read response from "+endpoint, err)
	}
	return body, resp.StatusCode, nil
}

func bucketFromDagPrefix(prefix string) string {
	trimmed := strings.TrimPrefix(prefix, "gs://")
	if trimmed == prefix {
		return ""
	}
	return strings.SplitN(trimmed, "/", 2)[0]
}
