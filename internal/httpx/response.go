// Package httpx writes JSON responses and maps service errors to HTTP statuses.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			// avoid writing partial JSON
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// Error writes err with the status of its kind. Storage failures are logged
// and reported without their cause.
func Error(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status, code := Classify(err)
	resp := ErrorResponse{Error: code}
	switch {
	case errors.Is(err, apperr.ErrValidation):
		if v := apperr.ViolationsOf(err); !v.Empty() {
			resp.Details = v
		}
	case status == http.StatusInternalServerError:
		log.WithError(err).Error("request failed")
	default:
		resp.Message = err.Error()
	}
	JSON(w, status, resp)
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrReferentialIntegrity):
		return http.StatusConflict, "in_use"
	case errors.Is(err, apperr.ErrAlreadyClosed):
		return http.StatusConflict, "already_closed"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}
