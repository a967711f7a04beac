package server

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/logger"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	ErrorCode int      `json:"error_code"`
	Category  string   `json:"error_category,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, errorResponse{Message: message, ErrorCode: status})
}

// respondError logs err and writes it with the status its category maps to.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	category := errors.Category(err)

	log := logger.FromContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", r.URL.Path, "status", status, logger.FieldError, err.Error())
	} else {
		log.Infow("Request rejected", "path", r.URL.Path, "status", status, logger.FieldCategory, category, logger.FieldError, err.Error())
	}

	if message != "" {
		message += ": "
	}
	_ = writeJSON(w, status, errorResponse{
		Message:   message + err.Error(),
		ErrorCode: status,
		Category:  category,
		Hints:     errors.GetAllHints(err),
	})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, errors.ErrInput), errors.Is(err, errors.ErrConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
