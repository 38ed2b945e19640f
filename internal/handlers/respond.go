// Package handlers contains HTTP request handlers for the incident portal API.
// Handlers parse requests, call services, and return JSON responses.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, kind apperr.Kind, message string) {
	respondJSON(w, apperr.Status(kind), map[string]string{"error": message, "code": string(kind)})
}

// respondServiceError maps a service error onto the taxonomy. Anything that
// is not an *apperr.Error is logged and reported as internal with a generic
// message.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger, err error, fallback string) {
	var e *apperr.Error
	if errors.As(err, &e) {
		respondError(w, e.Kind, e.Message)
		return
	}
	logger.Errorw(fallback,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
	)
	respondError(w, apperr.KindInternal, fallback)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, apperr.KindBadRequest, "Request body too large")
			return false
		}
		respondError(w, apperr.KindBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathID parses the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, notFound string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// Malformed ids cannot exist.
		respondError(w, apperr.KindNotFound, notFound)
		return uuid.Nil, false
	}
	return id, true
}
