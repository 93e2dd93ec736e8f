package vertex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

const EntityVertex = "vertexScheduler"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type vertexRequest struct {
	path   string
	method string
	query  url.Values
	body   []byte
}

// Client speaks to the regional Vertex AI endpoint. Pause, resume and
// delete answer 204 with an empty body, which counts as success.
type Client struct {
	httpClient HTTPClient
	resolver   *gcp.Resolver
}

func NewClient(httpClient HTTPClient, resolver *gcp.Resolver) *Client {
	return &Client{httpClient: httpClient, resolver: resolver}
}

func (c *Client) parent(creds gcp.Credentials) string {
	return fmt.Sprintf("projects/%s/locations/%s", creds.ProjectID, creds.Region)
}

func (c *Client) Invoke(ctx context.Context, r vertexRequest, creds gcp.Credentials) ([]byte, error) {
	spanCtx, span := startChildSpan(ctx, "vertex/"+r.method+"/"+r.path)
	defer span.End()

	base := c.resolver.Resolve("aiplatform", fmt.Sprintf("https://%s-aiplatform.googleapis.com/", creds.Region))
	endpoint := base + "v1/" + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	request, err := http.NewRequestWithContext(spanCtx, r.method, endpoint, bytes.NewBuffer(r.body))
	if err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to build http request for "+endpoint, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	httpResp, respErr := c.httpClient.Do(request)
	if respErr != nil {
		return nil, errors.Wrap(EntityVertex, "failed to call vertex "+endpoint, respErr)
	}
	body, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		return nil, errors.Wrap(EntityVertex, "failed to read vertex response", err)
	}

	if httpResp.StatusCode == http.StatusNotFound {
		return nil, errors.NotFound(EntityVertex, fmt.Sprintf("%s returned 404: %s", endpoint, string(body)))
	}
	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Upstream(EntityVertex,
			fmt.Sprintf("status code received %d on calling %s: %s", httpResp.StatusCode, endpoint, string(body)), nil)
	}
	return body, nil
}

func startChildSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := otel.Tracer("scheduler/vertex")

	return tracer.Start(ctx, name)
}
