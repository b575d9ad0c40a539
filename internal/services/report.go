package services

import (
	"context"
	"sort"
	"time"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Percent is part/total*100 rounded to two decimals, 0 when total is 0.
func Percent(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred).Round(2)
}

// Range is an inclusive date range.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// KPIs are the headline figures of a period.
type KPIs struct {
	Range
	Income              decimal.Decimal `json:"income"`
	Expense             decimal.Decimal `json:"expense"`
	Net                 decimal.Decimal `json:"net"`
	Movements           int64           `json:"movements"`
	OrdersCreated       int64           `json:"orders_created"`
	OrdersPaid          int64           `json:"orders_paid"`
	CollectedFromOrders decimal.Decimal `json:"collected_from_orders"`
	Outstanding         decimal.Decimal `json:"outstanding"`
	AverageTicket       decimal.Decimal `json:"average_ticket"`
}

// Share is one slice of a composition report.
type Share struct {
	ID      *uint           `json:"id,omitempty"`
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Total   decimal.Decimal `json:"total"`
	Count   int64           `json:"count"`
	Percent decimal.Decimal `json:"percent"`
}

// Composition splits a total into shares.
type Composition struct {
	Range
	Direction models.Direction `json:"direction"`
	Total     decimal.Decimal  `json:"total"`
	Shares    []Share          `json:"shares"`
}

// StatusCount is the number of orders in one status.
type StatusCount struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Activity summarizes operational volume over a period.
type Activity struct {
	Range
	OrdersByStatus  []StatusCount `json:"orders_by_status"`
	Orders          int64         `json:"orders"`
	Lines           int64         `json:"lines"`
	Payments        int64         `json:"payments"`
	Movements       int64         `json:"movements"`
	CashboxesOpened int64         `json:"cashboxes_opened"`
	CashboxesClosed int64         `json:"cashboxes_closed"`
}

// ReportingEngine derives read-only reports from orders and the ledger.
type ReportingEngine struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewReportingEngine(db *gorm.DB, log logrus.FieldLogger) *ReportingEngine {
	return &ReportingEngine{db: db, log: log}
}

func checkRange(from, to time.Time) (Range, error) {
	r := Range{From: models.DateOf(from), To: models.DateOf(to)}
	if from.IsZero() || to.IsZero() {
		return r, apperr.Field("range", "required")
	}
	if r.To.Before(r.From) {
		return r, apperr.Field("to", "before_from")
	}
	return r, nil
}

func (e *ReportingEngine) KPIs(ctx context.Context, from, to time.Time) (*KPIs, error) {
	r, err := checkRange(from, to)
	if err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	totals, err := sumByDirection(db, r.From, r.To)
	if err != nil {
		return nil, apperr.Storage("kpis", err)
	}
	k := &KPIs{
		Range:     r,
		Income:    totals.Income,
		Expense:   totals.Expense,
		Net:       totals.Net(),
		Movements: totals.Count,
	}

	if err := db.Model(&models.WorkOrder{}).
		Where("order_date >= ? AND order_date <= ?", r.From, r.To).
		Count(&k.OrdersCreated).Error; err != nil {
		return nil, apperr.Storage("kpis", err)
	}
	if err := db.Model(&models.WorkOrder{}).
		Joins("JOIN order_statuses ON order_statuses.id = work_orders.status_id").
		Where("order_statuses.code = ? AND work_orders.order_date >= ? AND work_orders.order_date <= ?", models.StatusPaid, r.From, r.To).
		Count(&k.OrdersPaid).Error; err != nil {
		return nil, apperr.Storage("kpis", err)
	}

	// Reversals of order movements carry the order id, so income minus
	// expense over order-linked rows is the net collected.
	var collected []struct {
		Direction models.Direction
		Total     decimal.Decimal
	}
	if err := db.Model(&models.LedgerMovement{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total").
		Where("order_id IS NOT NULL AND date >= ? AND date <= ?", r.From, r.To).
		Group("direction").
		Scan(&collected).Error; err != nil {
		return nil, apperr.Storage("kpis", err)
	}
	k.CollectedFromOrders = decimal.Zero
	for _, c := range collected {
		if c.Direction == models.DirectionIncome {
			k.CollectedFromOrders = k.CollectedFromOrders.Add(c.Total)
		} else {
			k.CollectedFromOrders = k.CollectedFromOrders.Sub(c.Total)
		}
	}
	k.CollectedFromOrders = k.CollectedFromOrders.Round(2)

	var open []models.WorkOrder
	if err := db.Preload("Lines").Preload("Payments").
		Joins("JOIN order_statuses ON order_statuses.id = work_orders.status_id").
		Where("order_statuses.code <> ? AND work_orders.order_date >= ? AND work_orders.order_date <= ?", models.StatusCancelled, r.From, r.To).
		Find(&open).Error; err != nil {
		return nil, apperr.Storage("kpis", err)
	}
	k.Outstanding = decimal.Zero
	for i := range open {
		if b := open[i].Balance(); b.IsPositive() {
			k.Outstanding = k.Outstanding.Add(b)
		}
	}

	k.AverageTicket = decimal.Zero
	if k.OrdersPaid > 0 {
		k.AverageTicket = k.CollectedFromOrders.Div(decimal.NewFromInt(k.OrdersPaid)).Round(2)
	}
	return k, nil
}

// CompositionByConcept splits the movements of one direction by concept.
func (e *ReportingEngine) CompositionByConcept(ctx context.Context, from, to time.Time, dir models.Direction) (*Composition, error) {
	r, err := checkRange(from, to)
	if err != nil {
		return nil, err
	}
	if !dir.Valid() {
		return nil, apperr.Field("direction", "invalid")
	}
	var rows []shareRow
	err = e.db.WithContext(ctx).Table("ledger_movements AS m").
		Select("m.concept_id AS id, c.code, c.name, COALESCE(SUM(m.amount), 0) AS total, COUNT(*) AS count").
		Joins("JOIN concepts c ON c.id = m.concept_id").
		Where("m.date >= ? AND m.date <= ? AND m.direction = ?", r.From, r.To, dir).
		Group("m.concept_id, c.code, c.name").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Storage("composition by concept", err)
	}
	return composition(r, dir, rows), nil
}

// ByPaymentMethod splits income by payment method. Movements without a
// method are reported under "unspecified".
func (e *ReportingEngine) ByPaymentMethod(ctx context.Context, from, to time.Time) (*Composition, error) {
	r, err := checkRange(from, to)
	if err != nil {
		return nil, err
	}
	var rows []shareRow
	err = e.db.WithContext(ctx).Table("ledger_movements AS m").
		Select("m.payment_method_id AS id, pm.code, pm.name, COALESCE(SUM(m.amount), 0) AS total, COUNT(*) AS count").
		Joins("LEFT JOIN payment_methods pm ON pm.id = m.payment_method_id").
		Where("m.date >= ? AND m.date <= ? AND m.direction = ?", r.From, r.To, models.DirectionIncome).
		Group("m.payment_method_id, pm.code, pm.name").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Storage("composition by payment method", err)
	}
	code, name := "unspecified", "Unspecified"
	for i := range rows {
		if rows[i].ID == nil {
			rows[i].Code, rows[i].Name = &code, &name
		}
	}
	return composition(r, models.DirectionIncome, rows), nil
}

type shareRow struct {
	ID    *uint
	Code  *string
	Name  *string
	Total decimal.Decimal
	Count int64
}

func composition(r Range, dir models.Direction, rows []shareRow) *Composition {
	c := &Composition{Range: r, Direction: dir, Total: decimal.Zero, Shares: []Share{}}
	for _, row := range rows {
		c.Total = c.Total.Add(row.Total)
	}
	c.Total = c.Total.Round(2)
	for _, row := range rows {
		total := row.Total.Round(2)
		c.Shares = append(c.Shares, Share{
			ID:      row.ID,
			Code:    deref(row.Code),
			Name:    deref(row.Name),
			Total:   total,
			Count:   row.Count,
			Percent: Percent(total, c.Total),
		})
	}
	sort.Slice(c.Shares, func(i, j int) bool {
		if !c.Shares[i].Total.Equal(c.Shares[j].Total) {
			return c.Shares[i].Total.GreaterThan(c.Shares[j].Total)
		}
		return c.Shares[i].Code < c.Shares[j].Code
	})
	return c
}

// OperationalActivity counts orders by status and the volume of lines,
// payments, movements and cashboxes in the period.
func (e *ReportingEngine) OperationalActivity(ctx context.Context, from, to time.Time) (*Activity, error) {
	r, err := checkRange(from, to)
	if err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	a := &Activity{Range: r}

	err = db.Table("order_statuses AS s").
		Select("s.code, s.name, COUNT(o.id) AS count").
		Joins("LEFT JOIN work_orders o ON o.status_id = s.id AND o.order_date >= ? AND o.order_date <= ?", r.From, r.To).
		Group("s.id, s.code, s.name, s.position").
		Order("s.position").
		Scan(&a.OrdersByStatus).Error
	if err != nil {
		return nil, apperr.Storage("operational activity", err)
	}
	for _, s := range a.OrdersByStatus {
		a.Orders += s.Count
	}

	inOrders := db.Model(&models.WorkOrder{}).Select("id").
		Where("order_date >= ? AND order_date <= ?", r.From, r.To)
	counts := []struct {
		q   *gorm.DB
		dst *int64
	}{
		{db.Model(&models.OrderLine{}).Where("order_id IN (?)", inOrders), &a.Lines},
		{db.Model(&models.Payment{}).Where("order_id IN (?)", inOrders), &a.Payments},
		{db.Model(&models.LedgerMovement{}).Where("date >= ? AND date <= ?", r.From, r.To), &a.Movements},
		{db.Model(&models.DailyCashbox{}).Where("date >= ? AND date <= ?", r.From, r.To), &a.CashboxesOpened},
		{db.Model(&models.DailyCashbox{}).Where("date >= ? AND date <= ? AND closed_at IS NOT NULL", r.From, r.To), &a.CashboxesClosed},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return nil, apperr.Storage("operational activity", err)
		}
	}
	return a, nil
}
