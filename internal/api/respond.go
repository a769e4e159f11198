package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"inatmap/pkg/engine"
	"inatmap/pkg/mapsurface"
	"inatmap/pkg/panel"
	"inatmap/pkg/prompt"
	"inatmap/pkg/session"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, panel.ErrUnknownField),
		errors.Is(err, panel.ErrUnknownOption),
		errors.Is(err, prompt.ErrUnknownTarget),
		errors.Is(err, mapsurface.ErrUnknownResult),
		errors.Is(err, mapsurface.ErrBadCamera),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, mapsurface.ErrNotMounted), errors.Is(err, engine.ErrRemoved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func parseOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}
