package db

import (
	"github.com/diewo77/go-workshop/internal/models"
	"gorm.io/gorm"
)

// Seed creates the lookup rows the core depends on. Safe to run repeatedly.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := seedStatuses(tx); err != nil {
			return err
		}
		if err := seedPaymentMethods(tx); err != nil {
			return err
		}
		return seedConcepts(tx)
	})
}

func seedStatuses(tx *gorm.DB) error {
	statuses := []models.OrderStatus{
		{Code: models.StatusInitiated, Name: "Initiated", Position: 1},
		{Code: models.StatusPending, Name: "Pending", Position: 2},
		{Code: models.StatusCompleted, Name: "Completed", Position: 3},
		{Code: models.StatusPaid, Name: "Paid", Position: 4},
		{Code: models.StatusCancelled, Name: "Cancelled", Position: 5},
	}
	for _, s := range statuses {
		st := s
		if err := tx.Where("code = ?", s.Code).Attrs(s).FirstOrCreate(&st).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedPaymentMethods(tx *gorm.DB) error {
	methods := []models.PaymentMethod{
		{Code: models.MethodCash, Name: "Cash"},
		{Code: models.MethodCard, Name: "Card"},
		{Code: models.MethodTransfer, Name: "Bank transfer"},
	}
	for _, m := range methods {
		pm := m
		if err := tx.Where("code = ?", m.Code).Attrs(m).FirstOrCreate(&pm).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedConcepts(tx *gorm.DB) error {
	concepts := []models.Concept{
		{Code: models.ConceptCustomerCollection, Name: "Customer collection", Direction: models.DirectionIncome},
		{Code: models.ConceptPettyCashIn, Name: "Petty cash income", Direction: models.DirectionIncome},
		{Code: models.ConceptPettyCashOut, Name: "Petty cash expense", Direction: models.DirectionExpense},
		{Code: models.ConceptSupplies, Name: "Supplies", Direction: models.DirectionExpense},
	}
	for _, c := range concepts {
		cc := c
		if err := tx.Where("code = ?", c.Code).Attrs(c).FirstOrCreate(&cc).Error; err != nil {
			return err
		}
	}
	return nil
}
