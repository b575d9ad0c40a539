package services

import (
	"context"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Balance is the settlement view of one order.
type Balance struct {
	OrderID uint            `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Paid    decimal.Decimal `json:"paid"`
	Balance decimal.Decimal `json:"balance"`
	Settled bool            `json:"settled"`
}

// PaymentLedger attaches partial payments to orders and reports what is left
// to collect. Payments never post to the ledger by themselves; posting
// happens when the order's status becomes paid.
type PaymentLedger struct {
	db    *gorm.DB
	clock Clock
	log   logrus.FieldLogger
}

func NewPaymentLedger(db *gorm.DB, clock Clock, log logrus.FieldLogger) *PaymentLedger {
	return &PaymentLedger{db: db, clock: clock, log: log}
}

// Balance returns total, paid and balance for an order. Only payments flagged
// paid count towards Paid.
func (l *PaymentLedger) Balance(ctx context.Context, orderID uint) (*Balance, error) {
	var o models.WorkOrder
	err := l.db.WithContext(ctx).Preload("Lines").Preload("Payments").First(&o, orderID).Error
	if err != nil {
		return nil, apperr.Storage("order balance", lookupErr(err, "work order", orderID))
	}
	return balanceOf(&o), nil
}

func balanceOf(o *models.WorkOrder) *Balance {
	b := &Balance{
		OrderID: o.ID,
		Total:   o.Total(),
		Paid:    o.PaidTotal(),
		Balance: o.Balance(),
	}
	b.Settled = !b.Balance.IsPositive()
	return b
}

func (l *PaymentLedger) List(ctx context.Context, orderID uint) ([]models.Payment, error) {
	db := l.db.WithContext(ctx)
	ok, err := exists(db, &models.WorkOrder{}, orderID)
	if err != nil {
		return nil, apperr.Storage("list payments", err)
	}
	if !ok {
		return nil, apperr.NotFound("work order", orderID)
	}
	var out []models.Payment
	if err := db.Where("order_id = ?", orderID).Order("id").Find(&out).Error; err != nil {
		return nil, apperr.Storage("list payments", err)
	}
	return out, nil
}

// Add attaches one payment to an order and bumps the order version.
func (l *PaymentLedger) Add(ctx context.Context, orderID uint, in PaymentInput) (*models.Payment, error) {
	var pay models.Payment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		v := validation.Violations{}
		if err := validatePayments(tx, []PaymentInput{in}, order.OrderDate, today(l.clock), "payment", v); err != nil {
			return err
		}
		if !v.Empty() {
			return apperr.Validation(v)
		}
		pay = newPayment(orderID, in)
		if err := tx.Create(&pay).Error; err != nil {
			return err
		}
		return bumpVersion(tx, orderID)
	})
	if err != nil {
		return nil, apperr.Storage("add payment", err)
	}
	l.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"payment_id": pay.ID,
		"amount":     pay.Amount.StringFixed(2),
	}).Info("payment added")
	return &pay, nil
}

// SetPaid flips the received flag of a payment.
func (l *PaymentLedger) SetPaid(ctx context.Context, paymentID uint, paid bool) (*models.Payment, error) {
	var pay models.Payment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&pay, paymentID).Error; err != nil {
			return lookupErr(err, "payment", paymentID)
		}
		if _, err := lockOrder(tx, pay.OrderID); err != nil {
			return err
		}
		if err := tx.Model(&pay).Update("paid", paid).Error; err != nil {
			return err
		}
		return bumpVersion(tx, pay.OrderID)
	})
	if err != nil {
		return nil, apperr.Storage("update payment", err)
	}
	l.log.WithFields(logrus.Fields{"payment_id": paymentID, "paid": paid}).Info("payment updated")
	return &pay, nil
}

func lockOrder(tx *gorm.DB, id uint) (*models.WorkOrder, error) {
	var o models.WorkOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, id).Error; err != nil {
		return nil, lookupErr(err, "work order", id)
	}
	return &o, nil
}

func bumpVersion(tx *gorm.DB, orderID uint) error {
	return tx.Model(&models.WorkOrder{}).Where("id = ?", orderID).
		Update("version", gorm.Expr("version + 1")).Error
}
