package gcp

import "strings"

// Resolver maps a short GCP service name to its REST base URL. A
// per-service override from configuration wins over the caller's
// default, which wins over the public googleapis.com endpoint.
type Resolver struct {
	overrides map[string]string
}

func NewResolver(overrides map[string]string) *Resolver {
	return &Resolver{overrides: overrides}
}

func (r *Resolver) Resolve(service string, defaultURL ...string) string {
	if r != nil {
		if override, ok := r.overrides[service]; ok && override != "" {
			return ensureTrailingSlash(override)
		}
	}
	if len(defaultURL) > 0 && defaultURL[0] != "" {
		return ensureTrailingSlash(defaultURL[0])
	}
	return "https://" + service + ".googleapis.com/"
}

func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
