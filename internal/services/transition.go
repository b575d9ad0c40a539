package services

import (
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PostingPlan is what a status change asks the ledger to do.
type PostingPlan struct {
	// Triggered is true only on an edge into Paid for an order not yet posted.
	Triggered bool
	Movements []models.LedgerMovement
	// ZeroPayments flags the degenerate "paid without itemized payments" case.
	ZeroPayments bool
}

// PlanPosting computes the movements for a status change of order. It has no
// side effects; the caller persists the plan in the same transaction as the
// status change. from is nil when the order is being created.
func PlanPosting(order *models.WorkOrder, from, to *models.OrderStatus, conceptID uint) PostingPlan {
	if !to.IsPaid() || from.IsPaid() || order.IsPosted() {
		return PostingPlan{}
	}
	plan := PostingPlan{Triggered: true, ZeroPayments: len(order.Payments) == 0}
	for _, p := range order.Payments {
		orderID, methodID := order.ID, p.PaymentMethodID
		plan.Movements = append(plan.Movements, models.LedgerMovement{
			Date:            models.DateOf(order.OrderDate),
			Direction:       models.DirectionIncome,
			Amount:          p.Amount,
			ConceptID:       conceptID,
			PaymentMethodID: &methodID,
			OrderID:         &orderID,
			SourceRef:       order.SourceRef(),
			Description:     "payment collected for order " + orderLabel(order),
		})
	}
	return plan
}

func orderLabel(o *models.WorkOrder) string {
	if o.OrderNumber != nil && *o.OrderNumber != "" {
		return *o.OrderNumber
	}
	return o.SourceRef()
}

// TransitionNotifier applies posting plans. It is invoked by the order store
// inside the transaction that persists the status change, so either both the
// new status and its movements commit or neither does.
type TransitionNotifier struct {
	clock Clock
	log   logrus.FieldLogger
}

func NewTransitionNotifier(clock Clock, log logrus.FieldLogger) *TransitionNotifier {
	return &TransitionNotifier{clock: clock, log: log}
}

// Notify plans and persists the movements for order moving from -> to.
// order must carry its current payments.
func (n *TransitionNotifier) Notify(tx *gorm.DB, order *models.WorkOrder, from, to *models.OrderStatus) ([]models.LedgerMovement, error) {
	if !to.IsPaid() || from.IsPaid() || order.IsPosted() {
		return nil, nil
	}
	var concept models.Concept
	if err := tx.Where("code = ?", models.ConceptCustomerCollection).First(&concept).Error; err != nil {
		return nil, lookupErr(err, "concept", models.ConceptCustomerCollection)
	}
	plan := PlanPosting(order, from, to, concept.ID)

	entry := n.log.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"source_ref": order.SourceRef(),
		"from":       statusCode(from),
		"to":         statusCode(to),
	})
	if order.Link != nil && order.Link.Client != nil {
		entry = entry.WithField("client", order.Link.Client.FullName())
	}
	if plan.ZeroPayments {
		entry.WithField("audit", true).Warn("order marked paid without payments; nothing posted")
		return nil, nil
	}
	if err := tx.Create(&plan.Movements).Error; err != nil {
		return nil, err
	}
	now := n.clock.Now().UTC()
	if err := tx.Model(&models.WorkOrder{}).Where("id = ?", order.ID).Update("ledger_posted_at", now).Error; err != nil {
		return nil, err
	}
	order.LedgerPostedAt = &now
	entry.WithField("movements", len(plan.Movements)).Info("order payments posted to ledger")
	return plan.Movements, nil
}

func statusCode(s *models.OrderStatus) string {
	if s == nil {
		return ""
	}
	return s.Code
}
