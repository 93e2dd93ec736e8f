package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

const (
	EntityAuth = "gcpAuth"

	scope = "https://www.googleapis.com/auth/cloud-platform"

	credentialCacheKey = "credentials"
	cacheCleanupPeriod = 10 * time.Minute
)

// Credentials is what every orchestrator needs to call GCP on behalf of
// the signed-in user.
type Credentials struct {
	ProjectID     string
	ProjectNumber string
	Region        string
	AccessToken   string
	// account email when the token can be introspected, best effort
	Email string
}

// Owner is the local part of the account email, used as the DAG owner.
func (c Credentials) Owner() string {
	if at := strings.Index(c.Email, "@"); at > 0 {
		return c.Email[:at]
	}
	return ""
}

func (c Credentials) Validate() error {
	if c.AccessToken == "" {
		return errors.FailedPrecondition(EntityAuth, "access token is empty, re-login required")
	}
	if c.ProjectID == "" || c.Region == "" {
		return errors.FailedPrecondition(EntityAuth, "project or region is not configured")
	}
	return nil
}

// CredentialSource is the oracle handing out credentials per request.
type CredentialSource interface {
	Get(ctx context.Context) (Credentials, error)
}

// ApplicationDefault resolves credentials from the application-default
// chain and caches them until shortly before token expiry.
type ApplicationDefault struct {
	projectID string
	region    string
	resolver  *Resolver

	cache *gocache.Cache
}

func NewApplicationDefault(projectID, region string, resolver *Resolver) *ApplicationDefault {
	return &ApplicationDefault{
		projectID: projectID,
		region:    region,
		resolver:  resolver,
		cache:     gocache.New(gocache.NoExpiration, cacheCleanupPeriod),
	}
}

func (a *ApplicationDefault) Get(ctx context.Context) (Credentials, error) {
	if cached, ok := a.cache.Get(credentialCacheKey); ok {
		return cached.(Credentials), nil
	}

	creds, err := google.FindDefaultCredentials(ctx, scope)
	if err != nil {
		return Credentials{}, errors.Wrap(EntityAuth, "failed to resolve application default credentials", err)
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		return Credentials{}, errors.Wrap(EntityAuth, "failed to mint access token", err)
	}

	projectID := a.projectID
	if projectID == "" {
		projectID = creds.ProjectID
	}
	result := Credentials{
		ProjectID:   projectID,
		Region:      a.region,
		AccessToken: token.AccessToken,
	}
	if err := result.Validate(); err != nil {
		return Credentials{}, err
	}

	if number, err := a.lookupProjectNumber(ctx, projectID, token.AccessToken); err == nil {
		result.ProjectNumber = number
	}
	if email, err := a.lookupEmail(ctx, token.AccessToken); err == nil {
		result.Email = email
	}

	ttl := gocache.DefaultExpiration
	if !token.Expiry.IsZero() {
		ttl = time.Until(token.Expiry.Add(-5 * time.Minute))
	}
	if ttl > 0 {
		a.cache.Set(credentialCacheKey, result, ttl)
	}
	return result, nil
}

// TokenSource exposes the underlying oauth2 source for clients that
// manage their own transport, e.g. the storage bucket factory.
func (a *ApplicationDefault) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	creds, err := google.FindDefaultCredentials(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(EntityAuth, "failed to resolve application default credentials", err)
	}
	return creds.TokenSource, nil
}

func (a *ApplicationDefault) lookupProjectNumber(ctx context.Context, projectID, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%sv1/projects/%s", a.resolver.Resolve("cloudresourcemanager"), projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Upstream(EntityAuth, fmt.Sprintf("project lookup returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var project struct {
		ProjectNumber string `json:"projectNumber"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return "", err
	}
	return project.ProjectNumber, nil
}

func (a *ApplicationDefault) lookupEmail(ctx context.Context, accessToken string) (string, error) {
	endpoint := a.resolver.Resolve("oauth2") + "v2/userinfo"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Upstream(EntityAuth, fmt.Sprintf("userinfo returned %d", resp.StatusCode), nil)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}
