package services

import (
	"testing"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		part, total, want string
	}{
		{"1", "3", "33.33"},
		{"2", "3", "66.67"},
		{"50", "200", "25"},
		{"5", "0", "0"},
		{"0", "0", "0"},
	}
	for _, tt := range tests {
		got := Percent(dec(tt.part), dec(tt.total))
		assert.True(t, dec(tt.want).Equal(got), "Percent(%s, %s) = %s", tt.part, tt.total, got)
	}
}

// seedReports posts two paid orders, one pending order and a few manual movements on 2026-03-10.
func seedReports(t *testing.T, f *fixture) {
	t.Helper()
	f.order(t, models.StatusPaid, []LineInput{f.wheelLine("100", 1)}, []PaymentInput{
		f.payment(f.cash, "60", "2026-03-10"),
		f.payment(f.card, "40", "2026-03-10"),
	})
	f.order(t, models.StatusPaid, []LineInput{f.wheelLine("200", 1)}, []PaymentInput{
		f.payment(f.card, "200", "2026-03-10"),
	})
	f.order(t, models.StatusPending, []LineInput{f.wheelLine("90", 1)}, []PaymentInput{
		f.payment(f.cash, "30", "2026-03-10"),
	})
	f.order(t, models.StatusCancelled, []LineInput{f.wheelLine("500", 1)}, nil)

	for _, m := range []MovementInput{
		{Date: day("2026-03-10"), Direction: models.DirectionIncome, ConceptID: f.concepts[models.ConceptPettyCashIn].ID, Amount: dec("100")},
		{Date: day("2026-03-10"), Direction: models.DirectionExpense, ConceptID: f.concepts[models.ConceptSupplies].ID, Amount: dec("75")},
		{Date: day("2026-03-10"), Direction: models.DirectionExpense, ConceptID: f.concepts[models.ConceptPettyCashOut].ID, Amount: dec("25")},
	} {
		_, err := f.ledger.Record(t.Context(), m)
		require.NoError(t, err)
	}
}

func TestKPIs(t *testing.T) {
	f := newFixture(t)
	seedReports(t, f)

	k, err := f.reports.KPIs(t.Context(), day("2026-03-01"), day("2026-03-31"))
	require.NoError(t, err)
	assert.True(t, dec("400").Equal(k.Income), "income %s", k.Income)
	assert.True(t, dec("100").Equal(k.Expense), "expense %s", k.Expense)
	assert.True(t, dec("300").Equal(k.Net))
	assert.Equal(t, int64(6), k.Movements)
	assert.Equal(t, int64(4), k.OrdersCreated)
	assert.Equal(t, int64(2), k.OrdersPaid)
	assert.True(t, dec("300").Equal(k.CollectedFromOrders), "collected %s", k.CollectedFromOrders)
	assert.True(t, dec("60").Equal(k.Outstanding), "outstanding %s", k.Outstanding)
	assert.True(t, dec("150").Equal(k.AverageTicket))

	empty, err := f.reports.KPIs(t.Context(), day("2025-01-01"), day("2025-01-31"))
	require.NoError(t, err)
	assert.True(t, empty.AverageTicket.IsZero())
	assert.Zero(t, empty.OrdersCreated)
}

func TestKPIsRejectInvertedRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.reports.KPIs(t.Context(), day("2026-03-31"), day("2026-03-01"))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "before_from", apperr.ViolationsOf(err)["to"])
}

func TestCompositionByConcept(t *testing.T) {
	f := newFixture(t)
	seedReports(t, f)

	inc, err := f.reports.CompositionByConcept(t.Context(), day("2026-03-10"), day("2026-03-10"), models.DirectionIncome)
	require.NoError(t, err)
	assert.True(t, dec("400").Equal(inc.Total))
	require.Len(t, inc.Shares, 2)
	assert.Equal(t, models.ConceptCustomerCollection, inc.Shares[0].Code)
	assert.True(t, dec("75").Equal(inc.Shares[0].Percent))
	assert.Equal(t, int64(3), inc.Shares[0].Count)
	assert.Equal(t, models.ConceptPettyCashIn, inc.Shares[1].Code)
	assert.True(t, dec("25").Equal(inc.Shares[1].Percent))

	exp, err := f.reports.CompositionByConcept(t.Context(), day("2026-03-10"), day("2026-03-10"), models.DirectionExpense)
	require.NoError(t, err)
	require.Len(t, exp.Shares, 2)
	assert.Equal(t, models.ConceptSupplies, exp.Shares[0].Code)
	assert.True(t, dec("75").Equal(exp.Shares[0].Percent))

	none, err := f.reports.CompositionByConcept(t.Context(), day("2026-01-01"), day("2026-01-02"), models.DirectionExpense)
	require.NoError(t, err)
	assert.Empty(t, none.Shares)
	assert.True(t, none.Total.IsZero())

	_, err = f.reports.CompositionByConcept(t.Context(), day("2026-03-10"), day("2026-03-10"), "both")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestByPaymentMethod(t *testing.T) {
	f := newFixture(t)
	seedReports(t, f)

	c, err := f.reports.ByPaymentMethod(t.Context(), day("2026-03-10"), day("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, c.Shares, 3)
	assert.Equal(t, models.MethodCard, c.Shares[0].Code)
	assert.True(t, dec("240").Equal(c.Shares[0].Total))
	assert.True(t, dec("60").Equal(c.Shares[0].Percent))
	// The manual petty-cash income has no method.
	assert.True(t, dec("100").Equal(c.Shares[1].Total))
	assert.Equal(t, "unspecified", c.Shares[1].Code)
	assert.Nil(t, c.Shares[1].ID)
	assert.Equal(t, models.MethodCash, c.Shares[2].Code)
	assert.True(t, dec("15").Equal(c.Shares[2].Percent))
}

func TestOperationalActivity(t *testing.T) {
	f := newFixture(t)
	seedReports(t, f)
	_, err := f.cashbox.Open(t.Context(), OpenInput{Date: day("2026-03-10"), OpenedBy: "ana"})
	require.NoError(t, err)
	_, err = f.cashbox.Close(t.Context(), CloseInput{Date: day("2026-03-10"), ClosedBy: "ana"})
	require.NoError(t, err)
	_, err = f.cashbox.Open(t.Context(), OpenInput{Date: day("2026-03-11"), OpenedBy: "ana"})
	require.NoError(t, err)

	a, err := f.reports.OperationalActivity(t.Context(), day("2026-03-01"), day("2026-03-31"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.Orders)
	require.Len(t, a.OrdersByStatus, 5)
	byCode := map[string]int64{}
	for _, s := range a.OrdersByStatus {
		byCode[s.Code] = s.Count
	}
	assert.Equal(t, int64(2), byCode[models.StatusPaid])
	assert.Equal(t, int64(1), byCode[models.StatusPending])
	assert.Equal(t, int64(1), byCode[models.StatusCancelled])
	assert.Zero(t, byCode[models.StatusInitiated])
	assert.Equal(t, int64(4), a.Lines)
	assert.Equal(t, int64(4), a.Payments)
	assert.Equal(t, int64(6), a.Movements)
	assert.Equal(t, int64(2), a.CashboxesOpened)
	assert.Equal(t, int64(1), a.CashboxesClosed)
}
