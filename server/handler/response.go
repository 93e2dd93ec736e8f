package handler

import (
	"encoding/json"
	"net/http"

	"github.com/raystack/salt/log"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/errors"
)

// The UI treats any accepted request as HTTP 200 and inspects the body
// for an "error" field; only requests rejected at validation get a 400.

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw passes an upstream JSON body through untouched.
func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(body) == 0 {
		body = []byte(`{}`)
	}
	_, _ = w.Write(body)
}

func writeError(l log.Logger, w http.ResponseWriter, err error) {
	l.Error("request failed", "err", err)
	w.Header().Set("Content-Type", "application/json")
	if errors.IsErrorType(err, errors.ErrInvalidArgument) {
		w.WriteHeader(http.StatusBadRequest)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}
