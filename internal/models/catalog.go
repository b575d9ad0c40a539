package models

// Reference data consumed by the core. The catalog layer owns its CRUD; the
// core only reads it and guards deletions.

// Status codes of the order lifecycle.
const (
	StatusInitiated = "initiated"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// Concept codes seeded at startup.
const (
	ConceptCustomerCollection = "customer_collection"
	ConceptPettyCashIn        = "petty_cash_in"
	ConceptPettyCashOut       = "petty_cash_out"
	ConceptSupplies           = "supplies"
)

// Payment method codes seeded at startup.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
)

// OrderStatus is the finite status enumeration, stored as a lookup table.
type OrderStatus struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Code     string `gorm:"size:30;uniqueIndex;not null" json:"code"`
	Name     string `gorm:"size:80;not null" json:"name"`
	Position int    `json:"position"`
}

func (s *OrderStatus) IsPaid() bool { return s != nil && s.Code == StatusPaid }

// Item is a billable catalog entry an order line points at.
type Item struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:150;not null" json:"name"`
	Categories []Category `gorm:"foreignKey:ItemID" json:"categories,omitempty"`
}

// Category narrows an item (e.g. color, finish).
type Category struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ItemID        uint          `gorm:"index;not null" json:"item_id"`
	Name          string        `gorm:"size:100;not null" json:"name"`
	Subcategories []Subcategory `gorm:"foreignKey:CategoryID" json:"subcategories,omitempty"`
}

// Subcategory is one selectable value of a category.
type Subcategory struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CategoryID uint   `gorm:"index;not null" json:"category_id"`
	Name       string `gorm:"size:100;not null" json:"name"`
}

type Insurer struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:150;uniqueIndex;not null" json:"name"`
}

type PaymentMethod struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"size:30;uniqueIndex;not null" json:"code"`
	Name string `gorm:"size:80;not null" json:"name"`
}

// Concept classifies ledger movements; Direction restricts which side it may post on.
type Concept struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:40;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	Direction Direction `gorm:"size:10;not null" json:"direction"`
}
