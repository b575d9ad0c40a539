package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type attributeRequest struct {
	CategoryID    uint `json:"category_id"`
	SubcategoryID uint `json:"subcategory_id"`
}

type lineRequest struct {
	ItemID               uint               `json:"item_id"`
	Note                 string             `json:"note"`
	UnitValue            decimal.Decimal    `json:"unit_value"`
	Quantity             int                `json:"quantity"`
	InstallationIncluded bool               `json:"installation_included"`
	Attributes           []attributeRequest `json:"attributes"`
}

type paymentRequest struct {
	PaymentMethodID uint            `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     string          `json:"payment_date"`
	Paid            *bool           `json:"paid"`
	Note            string          `json:"note"`
}

type createOrderRequest struct {
	LinkID       uint                 `json:"link_id"`
	Party        *services.PartyInput `json:"party"`
	StatusID     uint                 `json:"status_id"`
	StatusCode   string               `json:"status_code"`
	OrderNumber  string               `json:"order_number"`
	OrderDate    string               `json:"order_date"`
	DeliveryDate string               `json:"delivery_date"`
	HasInvoice   bool                 `json:"has_invoice"`
	IsWarranty   bool                 `json:"is_warranty"`
	InsurerID    *uint                `json:"insurer_id"`
	Notes        string               `json:"notes"`
	Lines        []lineRequest        `json:"lines"`
	Payments     []paymentRequest     `json:"payments"`
}

type updateOrderRequest struct {
	ExpectedVersion *int             `json:"expected_version"`
	StatusID        *uint            `json:"status_id"`
	StatusCode      *string          `json:"status_code"`
	OrderDate       *string          `json:"order_date"`
	DeliveryDate    *string          `json:"delivery_date"`
	HasInvoice      *bool            `json:"has_invoice"`
	IsWarranty      *bool            `json:"is_warranty"`
	InsurerID       *uint            `json:"insurer_id"`
	ClearInsurer    bool             `json:"clear_insurer"`
	Notes           *string          `json:"notes"`
	Lines           []lineRequest    `json:"lines"`
	Payments        []paymentRequest `json:"payments"`
}

type setPaidRequest struct {
	Paid bool `json:"paid"`
}

// OrderHandler serves work orders and their payments.
type OrderHandler struct {
	orders   *services.OrderService
	payments *services.PaymentLedger
	log      logrus.FieldLogger
}

func NewOrderHandler(orders *services.OrderService, payments *services.PaymentLedger, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments, log: log}
}

// Create: POST /orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	in := services.OrderInput{
		LinkID:       req.LinkID,
		Party:        req.Party,
		StatusID:     req.StatusID,
		StatusCode:   req.StatusCode,
		OrderNumber:  req.OrderNumber,
		OrderDate:    date("order_date", req.OrderDate, v),
		DeliveryDate: date("delivery_date", req.DeliveryDate, v),
		HasInvoice:   req.HasInvoice,
		IsWarranty:   req.IsWarranty,
		InsurerID:    req.InsurerID,
		Notes:        req.Notes,
		Lines:        lineInputs(req.Lines),
		Payments:     paymentInputs(req.Payments, "payments", v),
	}
	if in.LinkID == 0 && in.Party == nil {
		v.Add("link_id", "required")
	}
	if badRequest(w, v) {
		return
	}
	res, err := h.orders.Create(r.Context(), in)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// List: GET /orders?from=&to=&status=&link_id=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := validation.Violations{}
	f := services.OrderFilter{
		From:       date("from", q.Get("from"), v),
		To:         date("to", q.Get("to"), v),
		StatusCode: q.Get("status"),
	}
	if raw := q.Get("link_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			v.Add("link_id", "invalid")
		}
		f.LinkID = uint(id)
	}
	if badRequest(w, v) {
		return
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders, "total": len(orders)})
}

// Get: GET /orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

// Update: POST /orders/{id}
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	patch := services.OrderPatch{
		ExpectedVersion: req.ExpectedVersion,
		StatusID:        req.StatusID,
		StatusCode:      req.StatusCode,
		OrderDate:       optionalDate("order_date", req.OrderDate, v),
		DeliveryDate:    optionalDate("delivery_date", req.DeliveryDate, v),
		HasInvoice:      req.HasInvoice,
		IsWarranty:      req.IsWarranty,
		InsurerID:       req.InsurerID,
		ClearInsurer:    req.ClearInsurer,
		Notes:           req.Notes,
	}
	if req.Lines != nil {
		patch.Lines = lineInputs(req.Lines)
	}
	if req.Payments != nil {
		patch.Payments = paymentInputs(req.Payments, "payments", v)
	}
	if badRequest(w, v) {
		return
	}
	res, err := h.orders.Update(r.Context(), id, patch)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Delete: POST /orders/{id}/delete
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Balance: GET /orders/{id}/balance
func (h *OrderHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.payments.Balance(r.Context(), id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// AddPayment: POST /orders/{id}/payments
func (h *OrderHandler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	v := validation.Violations{}
	in := paymentInputs([]paymentRequest{req}, "payment", v)
	if badRequest(w, v) {
		return
	}
	p, err := h.payments.Add(r.Context(), id, in[0])
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

// SetPaid: POST /payments/{id}/paid
func (h *OrderHandler) SetPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req setPaidRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.payments.SetPaid(r.Context(), id, req.Paid)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func lineInputs(reqs []lineRequest) []services.LineInput {
	out := make([]services.LineInput, 0, len(reqs))
	for _, l := range reqs {
		in := services.LineInput{
			ItemID:               l.ItemID,
			Note:                 l.Note,
			UnitValue:            l.UnitValue,
			Quantity:             l.Quantity,
			InstallationIncluded: l.InstallationIncluded,
		}
		for _, a := range l.Attributes {
			in.Attributes = append(in.Attributes, services.AttributeInput{CategoryID: a.CategoryID, SubcategoryID: a.SubcategoryID})
		}
		out = append(out, in)
	}
	return out
}

func paymentInputs(reqs []paymentRequest, prefix string, v validation.Violations) []services.PaymentInput {
	out := make([]services.PaymentInput, 0, len(reqs))
	for i, p := range reqs {
		out = append(out, services.PaymentInput{
			PaymentMethodID: p.PaymentMethodID,
			Amount:          p.Amount,
			PaymentDate:     date(fmt.Sprintf("%s[%d].payment_date", prefix, i), p.PaymentDate, v),
			Paid:            p.Paid,
			Note:            p.Note,
		})
	}
	return out
}
