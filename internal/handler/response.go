package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"carebridge-auth/internal/middleware"
	"carebridge-auth/pkg/errors"
	"carebridge-auth/pkg/logger"
)

// maxBodyBytes caps the JSON bodies posted by the sign-in pages
const maxBodyBytes = 16 << 10

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.WithError(appErr).Error("Request error")
	} else {
		logger.WithError(appErr).Debug("Request error")
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = middleware.RequestIDFromContext(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	writeJSON(w, appErr.StatusCode, response, logger)
}

// decodeJSON reads a bounded JSON body into v. Only application/json is accepted, which
// keeps cross-site forms out and makes cross-origin scripts go through a CORS preflight.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) *errors.AppError {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		appErr := errors.NewValidationError("Content-Type must be application/json", nil)
		appErr.StatusCode = http.StatusUnsupportedMediaType
		return appErr
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewValidationError("Invalid request body", nil)
	}
	return nil
}
