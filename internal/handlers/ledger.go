package handlers

import (
	"net/http"
	"strconv"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type movementRequest struct {
	Date            string           `json:"date"`
	Direction       models.Direction `json:"direction"`
	Amount          decimal.Decimal  `json:"amount"`
	ConceptID       uint             `json:"concept_id"`
	PaymentMethodID *uint            `json:"payment_method_id"`
	Description     string           `json:"description"`
}

func (m movementRequest) input(v validation.Violations) services.MovementInput {
	return services.MovementInput{
		Date:            date("date", m.Date, v),
		Direction:       m.Direction,
		Amount:          m.Amount,
		ConceptID:       m.ConceptID,
		PaymentMethodID: m.PaymentMethodID,
		Description:     m.Description,
	}
}

type reverseRequest struct {
	Description string `json:"description"`
}

type LedgerHandler struct {
	ledger *services.LedgerService
	log    logrus.FieldLogger
}

func NewLedgerHandler(ledger *services.LedgerService, log logrus.FieldLogger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, log: log}
}

// Record: POST /ledger/movements
func (h *LedgerHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	in := req.input(v)
	if badRequest(w, v) {
		return
	}
	m, err := h.ledger.Record(r.Context(), in)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

// Reverse: POST /ledger/movements/{id}/reverse
func (h *LedgerHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reverseRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.ledger.Reverse(r.Context(), id, req.Description)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

// List: GET /ledger/movements?from=&to=&direction=&order_id=
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := validation.Violations{}
	f := services.MovementFilter{
		From:      date("from", q.Get("from"), v),
		To:        date("to", q.Get("to"), v),
		Direction: models.Direction(q.Get("direction")),
	}
	if f.Direction != "" && !f.Direction.Valid() {
		v.Add("direction", "invalid")
	}
	if raw := q.Get("order_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			v.Add("order_id", "invalid")
		}
		f.OrderID = uint(id)
	}
	if badRequest(w, v) {
		return
	}
	movs, err := h.ledger.List(r.Context(), f)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	net := decimal.Zero
	for i := range movs {
		net = net.Add(movs[i].Signed())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": movs, "total": len(movs), "net": net})
}
