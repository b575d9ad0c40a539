package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenInput opens the cashbox of a day.
type OpenInput struct {
	Date           time.Time
	OpeningBalance decimal.Decimal
	OpenedBy       string
	Notes          string
}

// CloseInput closes the cashbox of a day.
type CloseInput struct {
	Date     time.Time
	ClosedBy string
	Notes    string
}

// CashboxManager runs the per-day open/close lifecycle.
type CashboxManager struct {
	db          *gorm.DB
	clock       Clock
	log         logrus.FieldLogger
	ledger      *LedgerService
	lockTimeout time.Duration
}

func NewCashboxManager(db *gorm.DB, ledger *LedgerService, clock Clock, lockTimeout time.Duration, log logrus.FieldLogger) *CashboxManager {
	return &CashboxManager{db: db, ledger: ledger, clock: clock, lockTimeout: lockTimeout, log: log}
}

// Open creates the cashbox for a date. A date has at most one cashbox.
func (m *CashboxManager) Open(ctx context.Context, in OpenInput) (*models.DailyCashbox, error) {
	v := validation.Violations{}
	if in.Date.IsZero() {
		v.Add("date", "required")
	} else {
		validation.NotAfter("date", models.DateOf(in.Date), today(m.clock), "in_future", v)
	}
	validation.Required("opened_by", in.OpenedBy, v)
	validation.MinDecimal("opening_balance", in.OpeningBalance, decimal.Zero, v)
	if !v.Empty() {
		return nil, apperr.Validation(v)
	}

	date := models.DateOf(in.Date)
	cb := models.DailyCashbox{
		Date:           date,
		OpenedAt:       m.clock.Now().UTC(),
		OpeningBalance: in.OpeningBalance.Round(2),
		OpenedBy:       strings.TrimSpace(in.OpenedBy),
		OpeningNotes:   strings.TrimSpace(in.Notes),
	}
	// The unique index on date decides between concurrent opens.
	err := m.db.WithContext(ctx).Create(&cb).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.Conflict("cashbox for %s already exists", date.Format(models.DateLayout))
	}
	if err != nil {
		return nil, apperr.Storage("open cashbox", err)
	}
	m.log.WithFields(logrus.Fields{
		"date":            date.Format(models.DateLayout),
		"opening_balance": cb.OpeningBalance.StringFixed(2),
		"opened_by":       cb.OpenedBy,
	}).Info("cashbox opened")
	return &cb, nil
}

// Close freezes the day's totals. The cashbox row is locked for the duration
// of the transaction so two concurrent closes cannot both succeed: the loser
// waits, then observes closed_at and fails with AlreadyClosed.
func (m *CashboxManager) Close(ctx context.Context, in CloseInput) (*models.DailyCashbox, error) {
	v := validation.Violations{}
	if in.Date.IsZero() {
		v.Add("date", "required")
	}
	validation.Required("closed_by", in.ClosedBy, v)
	if !v.Empty() {
		return nil, apperr.Validation(v)
	}

	date := models.DateOf(in.Date)
	var cb models.DailyCashbox
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.setLockTimeout(tx); err != nil {
			return err
		}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("date = ?", date).First(&cb).Error
		if err != nil {
			return lookupErr(err, "cashbox", date.Format(models.DateLayout))
		}
		if cb.IsClosed() {
			return apperr.AlreadyClosed("cashbox for %s closed at %s", date.Format(models.DateLayout), cb.ClosedAt.Format(time.RFC3339))
		}
		totals, err := sumByDirection(tx, date, date)
		if err != nil {
			return err
		}
		snap := models.NewCashboxSnapshot(cb.OpeningBalance, totals.Income, totals.Expense, totals.Count)
		now := m.clock.Now().UTC()
		cb.ClosedAt = &now
		cb.ClosedBy = strings.TrimSpace(in.ClosedBy)
		cb.ClosingNotes = strings.TrimSpace(in.Notes)
		cb.Totals = datatypes.NewJSONType(snap)
		return tx.Model(&cb).Select("ClosedAt", "ClosedBy", "ClosingNotes", "Totals").Updates(&cb).Error
	})
	if err != nil {
		return nil, apperr.Storage("close cashbox", err)
	}
	snap := cb.Totals.Data()
	m.log.WithFields(logrus.Fields{
		"date":             date.Format(models.DateLayout),
		"closed_by":        cb.ClosedBy,
		"income":           snap.IncomeTotal.StringFixed(2),
		"expense":          snap.ExpenseTotal.StringFixed(2),
		"expected_balance": snap.ExpectedBalance.StringFixed(2),
		"movements":        snap.MovementCount,
	}).Info("cashbox closed")
	return &cb, nil
}

// setLockTimeout bounds how long Close waits on a concurrent closer.
// SET LOCAL takes no bind parameters, hence the formatted literal.
func (m *CashboxManager) setLockTimeout(tx *gorm.DB) error {
	if m.lockTimeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())).Error
}

// Get returns the cashbox of a date.
func (m *CashboxManager) Get(ctx context.Context, date time.Time) (*models.DailyCashbox, error) {
	cb, err := m.find(ctx, date)
	if err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, apperr.NotFound("cashbox", models.DateOf(date).Format(models.DateLayout))
	}
	return cb, nil
}

// Today returns today's cashbox.
func (m *CashboxManager) Today(ctx context.Context) (*models.DailyCashbox, error) {
	return m.Get(ctx, m.clock.Now())
}

// State reports none, open or closed for a date.
func (m *CashboxManager) State(ctx context.Context, date time.Time) (models.CashboxState, error) {
	cb, err := m.find(ctx, date)
	if err != nil {
		return "", err
	}
	return cb.State(), nil
}

// Preview computes what the snapshot would be if the cashbox closed now.
func (m *CashboxManager) Preview(ctx context.Context, date time.Time) (models.CashboxSnapshot, error) {
	cb, err := m.Get(ctx, date)
	if err != nil {
		return models.CashboxSnapshot{}, err
	}
	if snap, ok := cb.Snapshot(); ok {
		return snap, nil
	}
	d := models.DateOf(date)
	totals, err := m.ledger.Totals(ctx, d, d)
	if err != nil {
		return models.CashboxSnapshot{}, err
	}
	return models.NewCashboxSnapshot(cb.OpeningBalance, totals.Income, totals.Expense, totals.Count), nil
}

// List returns cashboxes in [from, to], newest first.
func (m *CashboxManager) List(ctx context.Context, from, to time.Time) ([]models.DailyCashbox, error) {
	var out []models.DailyCashbox
	err := m.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", models.DateOf(from), models.DateOf(to)).
		Order("date DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("list cashboxes", err)
	}
	return out, nil
}

// RecordPettyCash appends a petty-cash movement. The cashbox of the movement's
// date must be open.
func (m *CashboxManager) RecordPettyCash(ctx context.Context, in MovementInput) (*models.LedgerMovement, error) {
	if in.Date.IsZero() {
		in.Date = m.clock.Now()
	}
	date := models.DateOf(in.Date)
	in.PettyCash = true
	var mov *models.LedgerMovement
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cb models.DailyCashbox
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("date = ?", date).First(&cb).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Conflict("no cashbox open for %s", date.Format(models.DateLayout))
			}
			return err
		}
		if cb.IsClosed() {
			return apperr.AlreadyClosed("cashbox for %s is closed", date.Format(models.DateLayout))
		}
		mov, err = m.ledger.recordTx(tx, in)
		return err
	})
	if err != nil {
		return nil, apperr.Storage("record petty cash", err)
	}
	return mov, nil
}

func (m *CashboxManager) find(ctx context.Context, date time.Time) (*models.DailyCashbox, error) {
	var out []models.DailyCashbox
	err := m.db.WithContext(ctx).Where("date = ?", models.DateOf(date)).Limit(1).Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("find cashbox", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
