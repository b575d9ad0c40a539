package handlers

import (
	"net/http"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type openCashboxRequest struct {
	Date           string          `json:"date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	OpenedBy       string          `json:"opened_by"`
	Notes          string          `json:"notes"`
}

type closeCashboxRequest struct {
	Date     string `json:"date"`
	ClosedBy string `json:"closed_by"`
	Notes    string `json:"notes"`
}

type CashboxHandler struct {
	cashbox *services.CashboxManager
	clock   services.Clock
	log     logrus.FieldLogger
}

func NewCashboxHandler(cashbox *services.CashboxManager, clock services.Clock, log logrus.FieldLogger) *CashboxHandler {
	return &CashboxHandler{cashbox: cashbox, clock: clock, log: log}
}

// Open: POST /cashbox/open. The date defaults to today.
func (h *CashboxHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openCashboxRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	d := date("date", req.Date, v)
	if badRequest(w, v) {
		return
	}
	if d.IsZero() {
		d = h.clock.Now()
	}
	cb, err := h.cashbox.Open(r.Context(), services.OpenInput{
		Date:           d,
		OpeningBalance: req.OpeningBalance,
		OpenedBy:       req.OpenedBy,
		Notes:          req.Notes,
	})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cb)
}

// Close: POST /cashbox/close. The date defaults to today.
func (h *CashboxHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeCashboxRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	d := date("date", req.Date, v)
	if badRequest(w, v) {
		return
	}
	if d.IsZero() {
		d = h.clock.Now()
	}
	cb, err := h.cashbox.Close(r.Context(), services.CloseInput{Date: d, ClosedBy: req.ClosedBy, Notes: req.Notes})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cb)
}

// Get: GET /cashbox/{date}. "today" is accepted as a date.
func (h *CashboxHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("date")
	if raw == "today" {
		cb, err := h.cashbox.Today(r.Context())
		if err != nil {
			httpx.Error(w, h.log, err)
			return
		}
		h.writeCashbox(w, r, cb)
		return
	}
	v := validation.Violations{}
	d := date("date", raw, v)
	if badRequest(w, v) {
		return
	}
	cb, err := h.cashbox.Get(r.Context(), d)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	h.writeCashbox(w, r, cb)
}

// writeCashbox adds the live preview while the cashbox is still open.
func (h *CashboxHandler) writeCashbox(w http.ResponseWriter, r *http.Request, cb *models.DailyCashbox) {
	body := map[string]any{"cashbox": cb, "state": cb.State()}
	if !cb.IsClosed() {
		preview, err := h.cashbox.Preview(r.Context(), cb.Date)
		if err != nil {
			httpx.Error(w, h.log, err)
			return
		}
		body["preview"] = preview
	}
	httpx.JSON(w, http.StatusOK, body)
}

// PettyCash: POST /cashbox/petty-cash
func (h *CashboxHandler) PettyCash(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	in := req.input(v)
	if badRequest(w, v) {
		return
	}
	m, err := h.cashbox.RecordPettyCash(r.Context(), in)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

// List: GET /cashbox?from=&to=
func (h *CashboxHandler) List(w http.ResponseWriter, r *http.Request) {
	v := validation.Violations{}
	from, to := dateRange(r, v)
	if badRequest(w, v) {
		return
	}
	items, err := h.cashbox.List(r.Context(), from, to)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}
