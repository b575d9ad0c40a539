package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a ledger movement.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

func (d Direction) Valid() bool { return d == DirectionIncome || d == DirectionExpense }

// Opposite returns the direction an offsetting movement takes.
func (d Direction) Opposite() Direction {
	if d == DirectionIncome {
		return DirectionExpense
	}
	return DirectionIncome
}

// LedgerMovement is an append-only financial entry. Rows are never updated or
// deleted; corrections are new movements pointing at the one they reverse.
type LedgerMovement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Date      time.Time       `gorm:"type:date;not null;index:idx_mov_date_dir_method,priority:1;index:idx_mov_date_dir_concept,priority:1" json:"date"`
	Direction Direction       `gorm:"size:10;not null;index:idx_mov_date_dir_method,priority:2;index:idx_mov_date_dir_concept,priority:2" json:"direction"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`

	ConceptID       uint  `gorm:"not null;index:idx_mov_date_dir_concept,priority:3" json:"concept_id"`
	PaymentMethodID *uint `gorm:"index:idx_mov_date_dir_method,priority:3" json:"payment_method_id,omitempty"`

	// OrderID and SourceRef tie the movement to the order it was posted from.
	OrderID   *uint  `gorm:"index" json:"order_id,omitempty"`
	SourceRef string `gorm:"size:50" json:"source_ref,omitempty"`

	PettyCash   bool   `gorm:"not null" json:"petty_cash"`
	Description string `gorm:"size:255" json:"description,omitempty"`
	// ReversesID points at the movement this one offsets. Unique: a movement is reversed at most once.
	ReversesID *uint `gorm:"uniqueIndex" json:"reverses_id,omitempty"`
}

// Signed returns the amount with expenses negated.
func (m *LedgerMovement) Signed() decimal.Decimal {
	if m.Direction == DirectionExpense {
		return m.Amount.Neg()
	}
	return m.Amount
}
