package handlers

import (
	"net/http"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/sirupsen/logrus"
)

type ReportHandler struct {
	reports *services.ReportingEngine
	log     logrus.FieldLogger
}

func NewReportHandler(reports *services.ReportingEngine, log logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{reports: reports, log: log}
}

// Report: GET /reports/{name}?from=&to=
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	v := validation.Violations{}
	from, to := dateRange(r, v)
	if badRequest(w, v) {
		return
	}
	var (
		out any
		err error
	)
	switch r.PathValue("name") {
	case "kpis":
		out, err = h.reports.KPIs(r.Context(), from, to)
	case "concepts":
		dir := models.Direction(r.URL.Query().Get("direction"))
		if dir == "" {
			dir = models.DirectionIncome
		}
		if !dir.Valid() {
			v.Add("direction", "invalid")
			badRequest(w, v)
			return
		}
		out, err = h.reports.CompositionByConcept(r.Context(), from, to, dir)
	case "payment-methods":
		out, err = h.reports.ByPaymentMethod(r.Context(), from, to)
	case "activity":
		out, err = h.reports.OperationalActivity(r.Context(), from, to)
	default:
		httpx.JSONError(w, http.StatusNotFound, "not_found", "unknown report")
		return
	}
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
