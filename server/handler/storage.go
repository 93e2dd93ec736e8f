package handler

import (
	"context"
	"net/http"

	"github.com/raystack/salt/log"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
)

// BucketLister enumerates the project's storage buckets for the
// schedule-creation form.
type BucketLister interface {
	ListBuckets(ctx context.Context, projectID string) ([]string, error)
}

type StorageHandler struct {
	l       log.Logger
	creds   gcp.CredentialSource
	buckets BucketLister
}

func NewStorageHandler(l log.Logger, creds gcp.CredentialSource, buckets BucketLister) *StorageHandler {
	return &StorageHandler{l: l, creds: creds, buckets: buckets}
}

func (h *StorageHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.Get(r.Context())
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	names, err := h.buckets.ListBuckets(r.Context(), creds.ProjectID)
	if err != nil {
		writeError(h.l, w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}
