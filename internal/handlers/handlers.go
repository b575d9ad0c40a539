// Package handlers exposes the services as a JSON API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/validation"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst, writing the error response itself.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// pathID parses a positive integer path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.PathValue(name)
	if raw == "" {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return 0, false
	}
	return uint(id), true
}

// date parses a YYYY-MM-DD value. Empty input yields the zero time, which
// the services report as required.
func date(field, raw string, v validation.Violations) time.Time {
	if raw == "" {
		return time.Time{}
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		v.Add(field, "invalid_date")
		return time.Time{}
	}
	return d
}

// optionalDate is date for patch fields: nil when absent.
func optionalDate(field string, raw *string, v validation.Violations) *time.Time {
	if raw == nil {
		return nil
	}
	d := date(field, *raw, v)
	return &d
}

// dateRange reads the from/to query parameters.
func dateRange(r *http.Request, v validation.Violations) (time.Time, time.Time) {
	q := r.URL.Query()
	from := date("from", q.Get("from"), v)
	to := date("to", q.Get("to"), v)
	validation.Required("from", q.Get("from"), v)
	validation.Required("to", q.Get("to"), v)
	return from, to
}

func badRequest(w http.ResponseWriter, v validation.Violations) bool {
	if v.Empty() {
		return false
	}
	httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
	return true
}
