package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/pipeline"
	"github.com/sells-group/lead-harvest/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// badRequest marks an error caused by the request itself.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func invalid(err error) error { return &badRequest{err: err} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var br *badRequest
	switch {
	case pipeline.IsConfigurationError(err):
		return http.StatusPreconditionFailed
	case store.IsNotLoggedIn(err):
		return http.StatusUnauthorized
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.As(err, &br):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid(eris.Wrap(err, "decode request body"))
	}
	return nil
}
