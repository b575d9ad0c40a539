package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WorkOrder is the order header. It owns its lines and payments.
type WorkOrder struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LinkID uint               `gorm:"index;not null" json:"link_id"`
	Link   *ClientVehicleLink `gorm:"foreignKey:LinkID" json:"link,omitempty"`

	StatusID uint         `gorm:"index;not null" json:"status_id"`
	Status   *OrderStatus `gorm:"foreignKey:StatusID" json:"status,omitempty"`

	// OrderNumber is the human-readable identifier (e.g. OT-2026-0007).
	OrderNumber  *string   `gorm:"size:50;uniqueIndex" json:"order_number,omitempty"`
	OrderDate    time.Time `gorm:"type:date;not null;index" json:"order_date"`
	DeliveryDate time.Time `gorm:"type:date;not null" json:"delivery_date"`
	HasInvoice   bool      `gorm:"not null" json:"has_invoice"`
	IsWarranty   bool      `gorm:"not null" json:"is_warranty"`
	InsurerID    *uint     `gorm:"index" json:"insurer_id,omitempty"`
	Notes        string    `gorm:"type:text" json:"notes,omitempty"`

	// Version increments on every update; callers may pass it back to detect stale writes.
	Version int `gorm:"not null" json:"version"`
	// LedgerPostedAt is set once the order's payments were posted to the ledger.
	LedgerPostedAt *time.Time `json:"ledger_posted_at,omitempty"`

	Lines    []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	Payments []Payment   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
}

// Total is the sum of line totals.
func (o *WorkOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Lines {
		total = total.Add(o.Lines[i].Total())
	}
	return total
}

// PaidTotal sums the payments flagged as received.
func (o *WorkOrder) PaidTotal() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range o.Payments {
		if p.Paid {
			paid = paid.Add(p.Amount)
		}
	}
	return paid
}

// Balance is what remains to be collected.
func (o *WorkOrder) Balance() decimal.Decimal {
	return o.Total().Sub(o.PaidTotal())
}

// IsPosted reports whether the order already produced ledger movements.
func (o *WorkOrder) IsPosted() bool { return o.LedgerPostedAt != nil }

// SourceRef is the ledger source reference for movements posted from this order.
func (o *WorkOrder) SourceRef() string { return OrderSourceRef(o.ID) }

func OrderSourceRef(id uint) string { return fmt.Sprintf("ORDER-%d", id) }

// OrderLine is one billable item of an order.
type OrderLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID              uint            `gorm:"index;not null" json:"order_id"`
	ItemID               uint            `gorm:"index;not null" json:"item_id"`
	Note                 string          `gorm:"size:500" json:"note,omitempty"`
	UnitValue            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_value"`
	Quantity             int             `gorm:"not null" json:"quantity"`
	InstallationIncluded bool            `gorm:"not null" json:"installation_included"`

	Attributes []LineAttribute `gorm:"foreignKey:LineID;constraint:OnDelete:CASCADE" json:"attributes,omitempty"`
}

// Total is unit value times quantity.
func (l *OrderLine) Total() decimal.Decimal {
	return l.UnitValue.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineAttribute is a category -> subcategory choice on a line. At most one
// subcategory per (line, category).
type LineAttribute struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	LineID        uint `gorm:"not null;uniqueIndex:idx_line_category,priority:1" json:"line_id"`
	CategoryID    uint `gorm:"not null;uniqueIndex:idx_line_category,priority:2;index" json:"category_id"`
	SubcategoryID uint `gorm:"not null;index" json:"subcategory_id"`
}

// Payment is a partial payment attached to an order. Paid=false models a
// pledge that has not been received yet.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID         uint            `gorm:"index;not null" json:"order_id"`
	PaymentMethodID uint            `gorm:"index;not null" json:"payment_method_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaymentDate     time.Time       `gorm:"type:date;not null" json:"payment_date"`
	Paid            bool            `gorm:"not null" json:"paid"`
	Note            string          `gorm:"size:500" json:"note,omitempty"`
}

// NextOrderSequence returns one past the highest sequence used in year, for
// order numbers of the form OT-YYYY-NNNN (e.g., OT-2026-0001).
// Numbers that do not follow the OT-YYYY-NNNN pattern are ignored.
func NextOrderSequence(db *gorm.DB, year int) (int, error) {
	prefix := fmt.Sprintf("OT-%d-", year)
	var numbers []string
	err := db.Model(&WorkOrder{}).
		Where("order_number LIKE ?", prefix+"%").
		Pluck("order_number", &numbers).Error
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, n := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(n, prefix))
		if err == nil && seq > highest {
			highest = seq
		}
	}
	return highest + 1, nil
}

func FormatOrderNumber(year, seq int) string {
	return fmt.Sprintf("OT-%d-%04d", year, seq)
}
