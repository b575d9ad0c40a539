package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-workshop/internal/config"
	"github.com/diewo77/go-workshop/internal/db"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// fixture wires every service against a fresh in-memory database seeded with
// the lookup tables plus a small catalog.
type fixture struct {
	db    *gorm.DB
	clock *fixedClock
	hook  *test.Hook

	ledger   *LedgerService
	parties  *PartyResolver
	orders   *OrderService
	payments *PaymentLedger
	cashbox  *CashboxManager
	reports  *ReportingEngine
	guard    *ReferenceGuard

	// wheel has categories color (red, blue) and finish (matte); tire has size (L).
	wheel, tire      models.Item
	color, finish    models.Category
	red, blue, matte models.Subcategory
	size             models.Category
	large            models.Subcategory
	insurer          models.Insurer
	cash, card, xfer uint
	statuses         map[string]models.OrderStatus
	concepts         map[string]models.Concept

	plates int
}

var testToday = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	}
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	gdb, err := db.Open(cfg, log)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.Seed(gdb))

	f := &fixture{db: gdb, clock: &fixedClock{now: testToday}, hook: hook}
	f.ledger = NewLedgerService(gdb, f.clock, log)
	f.parties = NewPartyResolver(gdb, log)
	f.orders = NewOrderService(gdb, f.parties, NewTransitionNotifier(f.clock, log), f.clock, log)
	f.payments = NewPaymentLedger(gdb, f.clock, log)
	f.cashbox = NewCashboxManager(gdb, f.ledger, f.clock, time.Second, log)
	f.reports = NewReportingEngine(gdb, log)
	f.guard = NewReferenceGuard(gdb, log)

	f.wheel = models.Item{Name: "Wheel"}
	require.NoError(t, gdb.Create(&f.wheel).Error)
	f.tire = models.Item{Name: "Tire"}
	require.NoError(t, gdb.Create(&f.tire).Error)
	f.color = models.Category{ItemID: f.wheel.ID, Name: "Color"}
	require.NoError(t, gdb.Create(&f.color).Error)
	f.finish = models.Category{ItemID: f.wheel.ID, Name: "Finish"}
	require.NoError(t, gdb.Create(&f.finish).Error)
	f.size = models.Category{ItemID: f.tire.ID, Name: "Size"}
	require.NoError(t, gdb.Create(&f.size).Error)
	f.red = models.Subcategory{CategoryID: f.color.ID, Name: "Red"}
	require.NoError(t, gdb.Create(&f.red).Error)
	f.blue = models.Subcategory{CategoryID: f.color.ID, Name: "Blue"}
	require.NoError(t, gdb.Create(&f.blue).Error)
	f.matte = models.Subcategory{CategoryID: f.finish.ID, Name: "Matte"}
	require.NoError(t, gdb.Create(&f.matte).Error)
	f.large = models.Subcategory{CategoryID: f.size.ID, Name: "L"}
	require.NoError(t, gdb.Create(&f.large).Error)
	f.insurer = models.Insurer{Name: "Acme Insurance"}
	require.NoError(t, gdb.Create(&f.insurer).Error)

	var methods []models.PaymentMethod
	require.NoError(t, gdb.Find(&methods).Error)
	for _, m := range methods {
		switch m.Code {
		case models.MethodCash:
			f.cash = m.ID
		case models.MethodCard:
			f.card = m.ID
		case models.MethodTransfer:
			f.xfer = m.ID
		}
	}
	f.statuses = map[string]models.OrderStatus{}
	var statuses []models.OrderStatus
	require.NoError(t, gdb.Find(&statuses).Error)
	for _, s := range statuses {
		f.statuses[s.Code] = s
	}
	f.concepts = map[string]models.Concept{}
	var concepts []models.Concept
	require.NoError(t, gdb.Find(&concepts).Error)
	for _, c := range concepts {
		f.concepts[c.Code] = c
	}
	return f
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// link resolves a fresh client and vehicle with the given plate.
func (f *fixture) link(t *testing.T, plate string) uint {
	t.Helper()
	ref, err := f.parties.Resolve(t.Context(), PartyInput{
		NewClient:  &NewClient{FirstName: "Ana", LastName: "Pérez"},
		NewVehicle: &NewVehicle{Plate: plate},
	})
	require.NoError(t, err)
	return ref.LinkID
}

func (f *fixture) nextPlate() string {
	f.plates++
	return fmt.Sprintf("TST%03d", f.plates)
}

func (f *fixture) wheelLine(unit string, qty int) LineInput {
	return LineInput{ItemID: f.wheel.ID, UnitValue: dec(unit), Quantity: qty}
}

func (f *fixture) payment(method uint, amount string, date string) PaymentInput {
	return PaymentInput{PaymentMethodID: method, Amount: dec(amount), PaymentDate: day(date), Paid: ptr(true)}
}

// order creates an order on 2026-03-10 in the given status.
func (f *fixture) order(t *testing.T, status string, lines []LineInput, payments []PaymentInput) *OrderResult {
	t.Helper()
	res, err := f.orders.Create(t.Context(), OrderInput{
		LinkID:       f.link(t, f.nextPlate()),
		StatusCode:   status,
		OrderDate:    day("2026-03-10"),
		DeliveryDate: day("2026-03-12"),
		Lines:        lines,
		Payments:     payments,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) movementCount(t *testing.T, orderID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.LedgerMovement{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}
