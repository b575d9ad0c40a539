package services

import (
	"testing"
	"time"

	"github.com/diewo77/go-workshop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPosting(t *testing.T) {
	paid := &models.OrderStatus{Code: models.StatusPaid}
	pending := &models.OrderStatus{Code: models.StatusPending}
	posted := time.Now()
	order := func() *models.WorkOrder {
		return &models.WorkOrder{
			ID:        7,
			OrderDate: day("2026-03-10"),
			Payments: []models.Payment{
				{PaymentMethodID: 1, Amount: dec("100"), PaymentDate: day("2026-03-11")},
				{PaymentMethodID: 2, Amount: dec("150"), PaymentDate: day("2026-03-12")},
			},
		}
	}

	tests := []struct {
		name      string
		order     *models.WorkOrder
		from, to  *models.OrderStatus
		triggered bool
	}{
		{"pending to paid", order(), pending, paid, true},
		{"created as paid", order(), nil, paid, true},
		{"paid to paid", order(), paid, paid, false},
		{"paid to pending", order(), paid, pending, false},
		{"pending to pending", order(), pending, pending, false},
		{"already posted", func() *models.WorkOrder { o := order(); o.LedgerPostedAt = &posted; return o }(), pending, paid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanPosting(tt.order, tt.from, tt.to, 3)
			assert.Equal(t, tt.triggered, plan.Triggered)
			if !tt.triggered {
				assert.Empty(t, plan.Movements)
				return
			}
			require.Len(t, plan.Movements, 2)
			sum := decimal.Zero
			for _, m := range plan.Movements {
				assert.Equal(t, models.DirectionIncome, m.Direction)
				assert.Equal(t, day("2026-03-10"), m.Date, "movements are dated as the order")
				assert.Equal(t, uint(3), m.ConceptID)
				assert.Equal(t, "ORDER-7", m.SourceRef)
				require.NotNil(t, m.OrderID)
				assert.Equal(t, uint(7), *m.OrderID)
				sum = sum.Add(m.Amount)
			}
			assert.True(t, dec("250").Equal(sum))
			assert.Equal(t, uint(2), *plan.Movements[1].PaymentMethodID)
		})
	}
}

func TestPaidTransitionPostsOnce(t *testing.T) {
	f := newFixture(t)
	res := f.order(t, models.StatusPending, []LineInput{f.wheelLine("100", 1)}, []PaymentInput{
		f.payment(f.cash, "60", "2026-03-10"),
		f.payment(f.card, "40", "2026-03-11"),
	})
	id := res.Order.ID
	assert.Zero(t, f.movementCount(t, id))

	upd, err := f.orders.Update(t.Context(), id, OrderPatch{StatusCode: ptr(models.StatusPaid)})
	require.NoError(t, err)
	assert.Len(t, upd.Posted, 2)
	assert.True(t, upd.Order.IsPosted())
	assert.Equal(t, int64(2), f.movementCount(t, id))

	// Re-saving while paid, even with new payments, posts nothing.
	upd, err = f.orders.Update(t.Context(), id, OrderPatch{
		StatusCode: ptr(models.StatusPaid),
		Payments:   []PaymentInput{f.payment(f.cash, "100", "2026-03-12")},
	})
	require.NoError(t, err)
	assert.Empty(t, upd.Posted)
	assert.Equal(t, int64(2), f.movementCount(t, id))

	// Leaving and re-entering paid does not double-post either.
	_, err = f.orders.Update(t.Context(), id, OrderPatch{StatusCode: ptr(models.StatusCompleted)})
	require.NoError(t, err)
	upd, err = f.orders.Update(t.Context(), id, OrderPatch{StatusCode: ptr(models.StatusPaid)})
	require.NoError(t, err)
	assert.Empty(t, upd.Posted)
	assert.Equal(t, int64(2), f.movementCount(t, id))
}

func TestCreatedAsPaidPosts(t *testing.T) {
	f := newFixture(t)
	res := f.order(t, models.StatusPaid, []LineInput{f.wheelLine("80", 1)},
		[]PaymentInput{f.payment(f.xfer, "80", "2026-03-10")})
	require.Len(t, res.Posted, 1)
	m := res.Posted[0]
	assert.Equal(t, f.concepts[models.ConceptCustomerCollection].ID, m.ConceptID)
	assert.Equal(t, f.xfer, *m.PaymentMethodID)
	assert.Equal(t, res.Order.SourceRef(), m.SourceRef)
}

func TestPaidWithoutPaymentsIsAudited(t *testing.T) {
	f := newFixture(t)
	res := f.order(t, models.StatusCompleted, []LineInput{f.wheelLine("80", 1)}, nil)
	f.hook.Reset()

	upd, err := f.orders.Update(t.Context(), res.Order.ID, OrderPatch{StatusCode: ptr(models.StatusPaid)})
	require.NoError(t, err)
	assert.Empty(t, upd.Posted)
	assert.Equal(t, models.StatusPaid, upd.Order.Status.Code)
	assert.False(t, upd.Order.IsPosted())

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["audit"] == true {
			warned = true
			assert.Equal(t, res.Order.ID, e.Data["order_id"])
		}
	}
	assert.True(t, warned, "expected an audit warning")
}

func TestPostingRollsBackWithStatus(t *testing.T) {
	f := newFixture(t)
	res := f.order(t, models.StatusPending, []LineInput{f.wheelLine("80", 1)},
		[]PaymentInput{f.payment(f.cash, "80", "2026-03-10")})

	// Without the collection concept the posting fails, and so must the status change.
	require.NoError(t, f.db.Where("code = ?", models.ConceptCustomerCollection).Delete(&models.Concept{}).Error)
	_, err := f.orders.Update(t.Context(), res.Order.ID, OrderPatch{StatusCode: ptr(models.StatusPaid)})
	require.Error(t, err)

	o, err := f.orders.Get(t.Context(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, o.Status.Code)
	assert.Equal(t, 1, o.Version)
	assert.Zero(t, f.movementCount(t, res.Order.ID))
}

func TestScenarioOrderToClosedCashbox(t *testing.T) {
	f := newFixture(t)
	pending := func(amount string) PaymentInput {
		p := f.payment(f.cash, amount, "2026-03-10")
		p.Paid = ptr(false)
		return p
	}
	res := f.order(t, models.StatusPending, []LineInput{f.wheelLine("250", 1)},
		[]PaymentInput{pending("100"), pending("150")})
	id := res.Order.ID

	b, err := f.payments.Balance(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, dec("250").Equal(b.Balance))

	for _, p := range res.Order.Payments {
		_, err := f.payments.SetPaid(t.Context(), p.ID, true)
		require.NoError(t, err)
	}
	upd, err := f.orders.Update(t.Context(), id, OrderPatch{StatusCode: ptr(models.StatusPaid)})
	require.NoError(t, err)
	require.Len(t, upd.Posted, 2)

	movs, err := f.ledger.List(t.Context(), MovementFilter{OrderID: id})
	require.NoError(t, err)
	require.Len(t, movs, 2)
	sum := decimal.Zero
	for _, m := range movs {
		assert.Equal(t, models.DirectionIncome, m.Direction)
		assert.True(t, day("2026-03-10").Equal(m.Date), "date %s", m.Date)
		sum = sum.Add(m.Amount)
	}
	assert.True(t, dec("250").Equal(sum))

	_, err = f.cashbox.Open(t.Context(), OpenInput{Date: day("2026-03-10"), OpeningBalance: decimal.Zero, OpenedBy: "ana"})
	require.NoError(t, err)
	cb, err := f.cashbox.Close(t.Context(), CloseInput{Date: day("2026-03-10"), ClosedBy: "ana"})
	require.NoError(t, err)
	snap, ok := cb.Snapshot()
	require.True(t, ok)
	assert.True(t, dec("250").Equal(snap.IncomeTotal))
	assert.True(t, snap.ExpenseTotal.IsZero())
	assert.True(t, dec("250").Equal(snap.NetTotal))
	assert.True(t, dec("250").Equal(snap.ExpectedBalance))
}
