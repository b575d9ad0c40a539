package services

import (
	"context"
	"errors"
	"time"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerService is the append-only store of financial movements.
type LedgerService struct {
	db    *gorm.DB
	clock Clock
	log   logrus.FieldLogger
}

func NewLedgerService(db *gorm.DB, clock Clock, log logrus.FieldLogger) *LedgerService {
	return &LedgerService{db: db, clock: clock, log: log}
}

// MovementInput describes a manual movement (petty cash, supplies, adjustments).
type MovementInput struct {
	Date            time.Time
	Direction       models.Direction
	Amount          decimal.Decimal
	ConceptID       uint
	PaymentMethodID *uint
	PettyCash       bool
	Description     string
}

// Totals aggregates movements over a date range.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Count   int64           `json:"count"`
}

func (t Totals) Net() decimal.Decimal { return t.Income.Sub(t.Expense) }

// MovementFilter narrows List. Zero values are ignored.
type MovementFilter struct {
	From, To  time.Time
	Direction models.Direction
	OrderID   uint
	ConceptID uint
}

// Record appends a manual movement after checking it against the concept catalog.
func (s *LedgerService) Record(ctx context.Context, in MovementInput) (*models.LedgerMovement, error) {
	var mov *models.LedgerMovement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.recordTx(tx, in)
		mov = m
		return err
	})
	if err != nil {
		return nil, apperr.Storage("record movement", err)
	}
	return mov, nil
}

func (s *LedgerService) recordTx(tx *gorm.DB, in MovementInput) (*models.LedgerMovement, error) {
	v := validation.Violations{}
	if in.Date.IsZero() {
		v.Add("date", "required")
	} else {
		validation.NotAfter("date", models.DateOf(in.Date), today(s.clock), "in_future", v)
	}
	if !in.Direction.Valid() {
		v.Add("direction", "invalid")
	}
	if !in.Amount.IsPositive() {
		v.Add("amount", "must_be_positive")
	}
	validation.RequiredID("concept_id", in.ConceptID, v)

	if in.ConceptID != 0 {
		var concept models.Concept
		err := tx.First(&concept, in.ConceptID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			v.Add("concept_id", "unknown")
		case err != nil:
			return nil, err
		case in.Direction.Valid() && concept.Direction != in.Direction:
			v.Add("concept_id", "direction_mismatch")
		}
	}
	if in.PaymentMethodID != nil {
		ok, err := exists(tx, &models.PaymentMethod{}, *in.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if !ok {
			v.Add("payment_method_id", "unknown")
		}
	}
	if !v.Empty() {
		return nil, apperr.Validation(v)
	}

	mov := models.LedgerMovement{
		Date:            models.DateOf(in.Date),
		Direction:       in.Direction,
		Amount:          in.Amount.Round(2),
		ConceptID:       in.ConceptID,
		PaymentMethodID: in.PaymentMethodID,
		PettyCash:       in.PettyCash,
		Description:     in.Description,
	}
	if err := tx.Create(&mov).Error; err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"movement_id": mov.ID,
		"direction":   mov.Direction,
		"amount":      mov.Amount.StringFixed(2),
		"concept_id":  mov.ConceptID,
	}).Info("ledger movement recorded")
	return &mov, nil
}

// Reverse appends an offsetting movement dated today. A movement can be
// reversed once and reversals themselves cannot be reversed.
func (s *LedgerService) Reverse(ctx context.Context, id uint, description string) (*models.LedgerMovement, error) {
	var rev models.LedgerMovement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orig models.LedgerMovement
		if err := tx.First(&orig, id).Error; err != nil {
			return lookupErr(err, "ledger movement", id)
		}
		if orig.ReversesID != nil {
			return apperr.Conflict("movement %d is itself a reversal", id)
		}
		var n int64
		if err := tx.Model(&models.LedgerMovement{}).Where("reverses_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("movement %d already reversed", id)
		}
		if description == "" {
			description = "reversal"
		}
		rev = models.LedgerMovement{
			Date:            today(s.clock),
			Direction:       orig.Direction.Opposite(),
			Amount:          orig.Amount,
			ConceptID:       orig.ConceptID,
			PaymentMethodID: orig.PaymentMethodID,
			OrderID:         orig.OrderID,
			SourceRef:       orig.SourceRef,
			PettyCash:       orig.PettyCash,
			Description:     description,
			ReversesID:      &orig.ID,
		}
		return tx.Create(&rev).Error
	})
	if err != nil {
		return nil, apperr.Storage("reverse movement", err)
	}
	s.log.WithFields(logrus.Fields{"movement_id": rev.ID, "reverses_id": id}).Info("ledger movement reversed")
	return &rev, nil
}

func (s *LedgerService) Get(ctx context.Context, id uint) (*models.LedgerMovement, error) {
	var m models.LedgerMovement
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, apperr.Storage("get movement", lookupErr(err, "ledger movement", id))
	}
	return &m, nil
}

func (s *LedgerService) List(ctx context.Context, f MovementFilter) ([]models.LedgerMovement, error) {
	q := s.db.WithContext(ctx).Model(&models.LedgerMovement{})
	if !f.From.IsZero() {
		q = q.Where("date >= ?", models.DateOf(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("date <= ?", models.DateOf(f.To))
	}
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if f.OrderID != 0 {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.ConceptID != 0 {
		q = q.Where("concept_id = ?", f.ConceptID)
	}
	var out []models.LedgerMovement
	if err := q.Order("date, id").Find(&out).Error; err != nil {
		return nil, apperr.Storage("list movements", err)
	}
	return out, nil
}

// Totals sums income and expense over [from, to], both inclusive.
func (s *LedgerService) Totals(ctx context.Context, from, to time.Time) (Totals, error) {
	t, err := sumByDirection(s.db.WithContext(ctx), from, to)
	if err != nil {
		return Totals{}, apperr.Storage("ledger totals", err)
	}
	return t, nil
}

// sumByDirection runs on whatever handle it is given so callers inside a
// transaction see their own uncommitted rows.
func sumByDirection(tx *gorm.DB, from, to time.Time) (Totals, error) {
	var rows []struct {
		Direction models.Direction
		Total     decimal.Decimal
		Count     int64
	}
	err := tx.Model(&models.LedgerMovement{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("date >= ? AND date <= ?", models.DateOf(from), models.DateOf(to)).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, r := range rows {
		switch r.Direction {
		case models.DirectionIncome:
			t.Income = r.Total.Round(2)
		case models.DirectionExpense:
			t.Expense = r.Total.Round(2)
		}
		t.Count += r.Count
	}
	return t, nil
}

// lookupErr turns a missing row into a NotFound naming the entity.
func lookupErr(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

// exists reports whether a row with the given primary key exists in model's table.
func exists(tx *gorm.DB, model any, id uint) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
