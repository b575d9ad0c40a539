package services

import (
	"testing"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)
	supplies := f.concepts[models.ConceptSupplies].ID

	tests := []struct {
		name  string
		in    MovementInput
		field string
		code  string
	}{
		{"zero amount", MovementInput{Date: day("2026-03-15"), Direction: models.DirectionExpense, ConceptID: supplies}, "amount", "must_be_positive"},
		{"bad direction", MovementInput{Date: day("2026-03-15"), Direction: "sideways", Amount: dec("1"), ConceptID: supplies}, "direction", "invalid"},
		{"concept on wrong side", MovementInput{Date: day("2026-03-15"), Direction: models.DirectionIncome, Amount: dec("1"), ConceptID: supplies}, "concept_id", "direction_mismatch"},
		{"unknown concept", MovementInput{Date: day("2026-03-15"), Direction: models.DirectionIncome, Amount: dec("1"), ConceptID: 999}, "concept_id", "unknown"},
		{"future date", MovementInput{Date: day("2026-03-16"), Direction: models.DirectionExpense, Amount: dec("1"), ConceptID: supplies}, "date", "in_future"},
		{"unknown method", MovementInput{Date: day("2026-03-15"), Direction: models.DirectionExpense, Amount: dec("1"), ConceptID: supplies, PaymentMethodID: ptr(uint(999))}, "payment_method_id", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Record(t.Context(), tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.code, apperr.ViolationsOf(err)[tt.field])
		})
	}
}

func TestTotalsOverRange(t *testing.T) {
	f := newFixture(t)
	in := f.concepts[models.ConceptPettyCashIn].ID
	out := f.concepts[models.ConceptPettyCashOut].ID
	record := func(date string, dir models.Direction, concept uint, amount string) {
		_, err := f.ledger.Record(t.Context(), MovementInput{Date: day(date), Direction: dir, ConceptID: concept, Amount: dec(amount)})
		require.NoError(t, err)
	}
	record("2026-03-01", models.DirectionIncome, in, "100.10")
	record("2026-03-02", models.DirectionIncome, in, "0.20")
	record("2026-03-02", models.DirectionExpense, out, "30")
	record("2026-03-05", models.DirectionExpense, out, "99")

	tot, err := f.ledger.Totals(t.Context(), day("2026-03-01"), day("2026-03-02"))
	require.NoError(t, err)
	assert.True(t, dec("100.30").Equal(tot.Income), "income %s", tot.Income)
	assert.True(t, dec("30").Equal(tot.Expense), "expense %s", tot.Expense)
	assert.True(t, dec("70.30").Equal(tot.Net()))
	assert.Equal(t, int64(3), tot.Count)

	empty, err := f.ledger.Totals(t.Context(), day("2026-02-01"), day("2026-02-28"))
	require.NoError(t, err)
	assert.True(t, empty.Income.IsZero())
	assert.Zero(t, empty.Count)

	list, err := f.ledger.List(t.Context(), MovementFilter{Direction: models.DirectionExpense})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReverse(t *testing.T) {
	f := newFixture(t)
	res := f.order(t, models.StatusPaid, []LineInput{f.wheelLine("80", 1)},
		[]PaymentInput{f.payment(f.cash, "80", "2026-03-10")})
	orig := res.Posted[0]

	rev, err := f.ledger.Reverse(t.Context(), orig.ID, "charged twice")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionExpense, rev.Direction)
	assert.True(t, orig.Amount.Equal(rev.Amount))
	assert.Equal(t, orig.ID, *rev.ReversesID)
	assert.Equal(t, *orig.OrderID, *rev.OrderID)
	assert.True(t, day("2026-03-15").Equal(rev.Date), "reversals are dated today")

	_, err = f.ledger.Reverse(t.Context(), orig.ID, "")
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.ledger.Reverse(t.Context(), rev.ID, "")
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.ledger.Reverse(t.Context(), 9999, "")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// The original row is never rewritten.
	got, err := f.ledger.Get(t.Context(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionIncome, got.Direction)
	assert.Nil(t, got.ReversesID)
}
