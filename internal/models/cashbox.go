package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CashboxSnapshot is the frozen totals computed when a cashbox closes.
type CashboxSnapshot struct {
	IncomeTotal     decimal.Decimal `json:"income_total"`
	ExpenseTotal    decimal.Decimal `json:"expense_total"`
	NetTotal        decimal.Decimal `json:"net_total"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	MovementCount   int64           `json:"movement_count"`
}

// NewCashboxSnapshot derives net and expected balance from the day's totals.
func NewCashboxSnapshot(opening, income, expense decimal.Decimal, count int64) CashboxSnapshot {
	net := income.Sub(expense)
	return CashboxSnapshot{
		IncomeTotal:     income,
		ExpenseTotal:    expense,
		NetTotal:        net,
		ExpectedBalance: opening.Add(net),
		MovementCount:   count,
	}
}

// DailyCashbox is the per-day reconciliation record. Date is unique.
// ClosedAt nil means open; once set, Totals is authoritative and never rewritten.
type DailyCashbox struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Date           time.Time       `gorm:"type:date;uniqueIndex;not null" json:"date"`
	OpenedAt       time.Time       `gorm:"not null" json:"opened_at"`
	OpeningBalance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"opening_balance"`
	OpenedBy       string          `gorm:"size:120;not null" json:"opened_by"`
	OpeningNotes   string          `gorm:"type:text" json:"opening_notes,omitempty"`

	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedBy     string     `gorm:"size:120" json:"closed_by,omitempty"`
	ClosingNotes string     `gorm:"type:text" json:"closing_notes,omitempty"`

	Totals datatypes.JSONType[CashboxSnapshot] `json:"totals"`
}

// CashboxState is the lifecycle position of a calendar day.
type CashboxState string

const (
	CashboxNone   CashboxState = "none"
	CashboxOpen   CashboxState = "open"
	CashboxClosed CashboxState = "closed"
)

func (c *DailyCashbox) IsClosed() bool { return c.ClosedAt != nil }

func (c *DailyCashbox) State() CashboxState {
	switch {
	case c == nil:
		return CashboxNone
	case c.IsClosed():
		return CashboxClosed
	}
	return CashboxOpen
}

// Snapshot returns the frozen totals; ok is false while the cashbox is open.
func (c *DailyCashbox) Snapshot() (CashboxSnapshot, bool) {
	if !c.IsClosed() {
		return CashboxSnapshot{}, false
	}
	return c.Totals.Data(), true
}
