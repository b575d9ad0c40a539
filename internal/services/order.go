package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var minUnitValue = decimal.RequireFromString("0.01")

// LineInput is one order line as submitted by a caller.
type LineInput struct {
	ItemID               uint
	Note                 string
	UnitValue            decimal.Decimal
	Quantity             int
	InstallationIncluded bool
	Attributes           []AttributeInput
}

// AttributeInput picks a subcategory for one category of the line's item.
type AttributeInput struct {
	CategoryID    uint
	SubcategoryID uint
}

// PaymentInput is one partial payment. Paid defaults to true.
type PaymentInput struct {
	PaymentMethodID uint
	Amount          decimal.Decimal
	PaymentDate     time.Time
	Paid            *bool
	Note            string
}

// OrderInput creates an order. Either LinkID or Party must be set. The status
// is taken from StatusID, then StatusCode, and defaults to initiated.
type OrderInput struct {
	LinkID       uint
	Party        *PartyInput
	StatusID     uint
	StatusCode   string
	OrderNumber  string
	OrderDate    time.Time
	DeliveryDate time.Time
	HasInvoice   bool
	IsWarranty   bool
	InsurerID    *uint
	Notes        string
	Lines        []LineInput
	Payments     []PaymentInput
}

// OrderPatch updates an order. Nil fields are left untouched. A non-nil
// Lines or Payments slice replaces the whole collection.
type OrderPatch struct {
	ExpectedVersion *int
	StatusID        *uint
	StatusCode      *string
	OrderDate       *time.Time
	DeliveryDate    *time.Time
	HasInvoice      *bool
	IsWarranty      *bool
	InsurerID       *uint
	ClearInsurer    bool
	Notes           *string
	Lines           []LineInput
	Payments        []PaymentInput
}

// OrderResult is the persisted order plus any movements the write posted.
type OrderResult struct {
	Order  *models.WorkOrder        `json:"order"`
	Posted []models.LedgerMovement `json:"posted,omitempty"`
}

// OrderFilter narrows List. Zero values are ignored.
type OrderFilter struct {
	From, To   time.Time
	StatusCode string
	LinkID     uint
}

// OrderService owns work orders with their lines and payments. Every write
// is one transaction, including the ledger posting a status change triggers.
type OrderService struct {
	db       *gorm.DB
	parties  *PartyResolver
	notifier *TransitionNotifier
	clock    Clock
	log      logrus.FieldLogger
}

func NewOrderService(db *gorm.DB, parties *PartyResolver, notifier *TransitionNotifier, clock Clock, log logrus.FieldLogger) *OrderService {
	return &OrderService{db: db, parties: parties, notifier: notifier, clock: clock, log: log}
}

func (s *OrderService) Create(ctx context.Context, in OrderInput) (*OrderResult, error) {
	res := &OrderResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v := validation.Violations{}
		if in.LinkID != 0 && in.Party != nil {
			return apperr.Field("link_id", "exactly_one_of_link_or_party")
		}
		linkID := in.LinkID
		if linkID == 0 && in.Party != nil {
			ref, err := s.parties.resolveTx(tx, *in.Party)
			if err != nil {
				return err
			}
			linkID = ref.LinkID
		}

		status, err := resolveStatus(tx, in.StatusID, in.StatusCode, v)
		if err != nil {
			return err
		}
		order := models.WorkOrder{
			LinkID:       linkID,
			OrderDate:    models.DateOf(in.OrderDate),
			DeliveryDate: models.DateOf(in.DeliveryDate),
			HasInvoice:   in.HasInvoice,
			IsWarranty:   in.IsWarranty,
			InsurerID:    in.InsurerID,
			Notes:        strings.TrimSpace(in.Notes),
			Version:      1,
		}
		if status != nil {
			order.StatusID = status.ID
		}
		if err := validateHeader(tx, &order, v); err != nil {
			return err
		}
		if err := validateLines(tx, in.Lines, v); err != nil {
			return err
		}
		if err := validatePayments(tx, in.Payments, order.OrderDate, today(s.clock), "payments", v); err != nil {
			return err
		}
		if !v.Empty() {
			return apperr.Validation(v)
		}

		if err := insertHeader(tx, &order, strings.TrimSpace(in.OrderNumber)); err != nil {
			return err
		}
		if err := insertLines(tx, order.ID, in.Lines); err != nil {
			return err
		}
		payments, err := insertPayments(tx, order.ID, in.Payments)
		if err != nil {
			return err
		}
		order.Payments = payments

		posted, err := s.notifier.Notify(tx, &order, nil, status)
		if err != nil {
			return err
		}
		res.Posted = posted
		res.Order, err = loadOrder(tx, order.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Storage("create order", err)
	}
	s.log.WithFields(logrus.Fields{
		"order_id":     res.Order.ID,
		"order_number": deref(res.Order.OrderNumber),
		"status":       statusCode(res.Order.Status),
	}).Info("order created")
	return res, nil
}

func (s *OrderService) Update(ctx context.Context, id uint, p OrderPatch) (*OrderResult, error) {
	res := &OrderResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock serializes concurrent updates of one order, so the
		// posting marker is read and written by one writer at a time.
		locked, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		order := *locked
		if p.ExpectedVersion != nil && *p.ExpectedVersion != order.Version {
			return apperr.Conflict("work order %d is at version %d, expected %d", id, order.Version, *p.ExpectedVersion)
		}
		var from models.OrderStatus
		if err := tx.First(&from, order.StatusID).Error; err != nil {
			return lookupErr(err, "order status", order.StatusID)
		}

		v := validation.Violations{}
		to := &from
		if p.StatusID != nil || p.StatusCode != nil {
			var sid uint
			var code string
			if p.StatusID != nil {
				sid = *p.StatusID
			}
			if p.StatusCode != nil {
				code = *p.StatusCode
			}
			st, err := resolveStatus(tx, sid, code, v)
			if err != nil {
				return err
			}
			if st != nil {
				to = st
			}
		}
		applyPatch(&order, p)
		order.StatusID = to.ID

		payments := p.Payments
		if payments == nil {
			var existing []models.Payment
			if err := tx.Where("order_id = ?", id).Order("id").Find(&existing).Error; err != nil {
				return err
			}
			payments = paymentInputs(existing)
		}
		if err := validateHeader(tx, &order, v); err != nil {
			return err
		}
		if p.Lines != nil {
			if err := validateLines(tx, p.Lines, v); err != nil {
				return err
			}
		}
		if err := validatePayments(tx, payments, order.OrderDate, today(s.clock), "payments", v); err != nil {
			return err
		}
		if !v.Empty() {
			return apperr.Validation(v)
		}

		order.Version++
		if err := tx.Omit(clause.Associations).Save(&order).Error; err != nil {
			return err
		}
		if p.Lines != nil {
			if err := deleteLines(tx, id); err != nil {
				return err
			}
			if err := insertLines(tx, id, p.Lines); err != nil {
				return err
			}
		}
		if p.Payments != nil {
			if order.IsPosted() {
				s.log.WithFields(logrus.Fields{"order_id": id, "audit": true}).
					Warn("payments replaced on an order already posted to the ledger")
			}
			if err := tx.Where("order_id = ?", id).Delete(&models.Payment{}).Error; err != nil {
				return err
			}
			if _, err := insertPayments(tx, id, p.Payments); err != nil {
				return err
			}
		}
		if err := tx.Where("order_id = ?", id).Order("id").Find(&order.Payments).Error; err != nil {
			return err
		}

		posted, err := s.notifier.Notify(tx, &order, &from, to)
		if err != nil {
			return err
		}
		res.Posted = posted
		res.Order, err = loadOrder(tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Storage("update order", err)
	}
	s.log.WithFields(logrus.Fields{
		"order_id": id,
		"version":  res.Order.Version,
		"status":   statusCode(res.Order.Status),
	}).Info("order updated")
	return res, nil
}

// Delete removes an order with its lines and payments. Orders that already
// produced ledger movements cannot be deleted; reverse the movements instead.
func (s *OrderService) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &models.WorkOrder{}, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("work order", id)
		}
		var n int64
		if err := tx.Model(&models.LedgerMovement{}).Where("order_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Referenced("work order", id, "ledger movement")
		}
		if err := deleteLines(tx, id); err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.WorkOrder{}, id).Error
	})
	if err != nil {
		return apperr.Storage("delete order", err)
	}
	s.log.WithField("order_id", id).Info("order deleted")
	return nil
}

func (s *OrderService) Get(ctx context.Context, id uint) (*models.WorkOrder, error) {
	o, err := loadOrder(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, apperr.Storage("get order", err)
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context, f OrderFilter) ([]models.WorkOrder, error) {
	q := s.db.WithContext(ctx).Model(&models.WorkOrder{}).Preload("Status")
	if !f.From.IsZero() {
		q = q.Where("work_orders.order_date >= ?", models.DateOf(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("work_orders.order_date <= ?", models.DateOf(f.To))
	}
	if f.LinkID != 0 {
		q = q.Where("work_orders.link_id = ?", f.LinkID)
	}
	if f.StatusCode != "" {
		q = q.Joins("JOIN order_statuses ON order_statuses.id = work_orders.status_id").
			Where("order_statuses.code = ?", f.StatusCode)
	}
	var out []models.WorkOrder
	if err := q.Order("work_orders.order_date DESC, work_orders.id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Storage("list orders", err)
	}
	return out, nil
}

func loadOrder(tx *gorm.DB, id uint) (*models.WorkOrder, error) {
	var o models.WorkOrder
	err := tx.Preload("Status").
		Preload("Link.Client").
		Preload("Link.Vehicle").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Lines.Attributes").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&o, id).Error
	if err != nil {
		return nil, lookupErr(err, "work order", id)
	}
	return &o, nil
}

func applyPatch(o *models.WorkOrder, p OrderPatch) {
	if p.OrderDate != nil {
		o.OrderDate = models.DateOf(*p.OrderDate)
	}
	if p.DeliveryDate != nil {
		o.DeliveryDate = models.DateOf(*p.DeliveryDate)
	}
	if p.HasInvoice != nil {
		o.HasInvoice = *p.HasInvoice
	}
	if p.IsWarranty != nil {
		o.IsWarranty = *p.IsWarranty
	}
	if p.InsurerID != nil {
		o.InsurerID = p.InsurerID
	}
	if p.ClearInsurer {
		o.InsurerID = nil
	}
	if p.Notes != nil {
		o.Notes = strings.TrimSpace(*p.Notes)
	}
}

// resolveStatus looks the status up by id, then by code, defaulting to
// initiated. An unknown status is recorded in v and nil is returned.
func resolveStatus(tx *gorm.DB, id uint, code string, v validation.Violations) (*models.OrderStatus, error) {
	var st models.OrderStatus
	var err error
	field := "status_id"
	switch {
	case id != 0:
		err = tx.First(&st, id).Error
	case code != "":
		field = "status_code"
		err = tx.Where("code = ?", code).First(&st).Error
	default:
		err = tx.Where("code = ?", models.StatusInitiated).First(&st).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		v.Add(field, "unknown")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func validateHeader(tx *gorm.DB, o *models.WorkOrder, v validation.Violations) error {
	if o.LinkID == 0 {
		v.Add("link_id", "required")
	} else {
		ok, err := exists(tx, &models.ClientVehicleLink{}, o.LinkID)
		if err != nil {
			return err
		}
		if !ok {
			v.Add("link_id", "unknown")
		}
	}
	if o.OrderDate.IsZero() {
		v.Add("order_date", "required")
	}
	if o.DeliveryDate.IsZero() {
		v.Add("delivery_date", "required")
	} else if !o.OrderDate.IsZero() {
		validation.NotBefore("delivery_date", o.DeliveryDate, o.OrderDate, "before_order_date", v)
	}
	if o.InsurerID != nil {
		ok, err := exists(tx, &models.Insurer{}, *o.InsurerID)
		if err != nil {
			return err
		}
		if !ok {
			v.Add("insurer_id", "unknown")
		}
	}
	return nil
}

func validateLines(tx *gorm.DB, lines []LineInput, v validation.Violations) error {
	if len(lines) == 0 {
		v.Add("lines", "required")
		return nil
	}
	var itemIDs, catIDs, subIDs []uint
	for _, l := range lines {
		itemIDs = append(itemIDs, l.ItemID)
		for _, a := range l.Attributes {
			catIDs = append(catIDs, a.CategoryID)
			subIDs = append(subIDs, a.SubcategoryID)
		}
	}
	items := map[uint]models.Item{}
	if err := loadByID(tx, itemIDs, items); err != nil {
		return err
	}
	cats := map[uint]models.Category{}
	if err := loadByID(tx, catIDs, cats); err != nil {
		return err
	}
	subs := map[uint]models.Subcategory{}
	if err := loadByID(tx, subIDs, subs); err != nil {
		return err
	}

	for i, l := range lines {
		f := fmt.Sprintf("lines[%d]", i)
		if l.ItemID == 0 {
			v.Add(f+".item_id", "required")
		} else if _, ok := items[l.ItemID]; !ok {
			v.Add(f+".item_id", "unknown")
		}
		validation.MinDecimal(f+".unit_value", l.UnitValue, minUnitValue, v)
		validation.MinInt(f+".quantity", l.Quantity, 1, v)
		if utf8.RuneCountInString(l.Note) > 500 {
			v.Add(f+".note", "above_maximum")
		}
		seen := map[uint]bool{}
		for j, a := range l.Attributes {
			af := fmt.Sprintf("%s.attributes[%d]", f, j)
			cat, ok := cats[a.CategoryID]
			switch {
			case !ok:
				v.Add(af+".category_id", "unknown")
			case cat.ItemID != l.ItemID:
				v.Add(af+".category_id", "not_in_item")
			case seen[a.CategoryID]:
				v.Add(af+".category_id", "duplicate_category")
			}
			seen[a.CategoryID] = true
			sub, ok := subs[a.SubcategoryID]
			switch {
			case !ok:
				v.Add(af+".subcategory_id", "unknown")
			case sub.CategoryID != a.CategoryID:
				v.Add(af+".subcategory_id", "not_in_category")
			}
		}
	}
	return nil
}

// validatePayments checks amounts, methods and that every payment date falls
// between the order date and today.
func validatePayments(tx *gorm.DB, payments []PaymentInput, orderDate, today time.Time, prefix string, v validation.Violations) error {
	var methodIDs []uint
	for _, p := range payments {
		methodIDs = append(methodIDs, p.PaymentMethodID)
	}
	methods := map[uint]models.PaymentMethod{}
	if err := loadByID(tx, methodIDs, methods); err != nil {
		return err
	}
	for i, p := range payments {
		f := fmt.Sprintf("%s[%d]", prefix, i)
		if p.PaymentMethodID == 0 {
			v.Add(f+".payment_method_id", "required")
		} else if _, ok := methods[p.PaymentMethodID]; !ok {
			v.Add(f+".payment_method_id", "unknown")
		}
		validation.MinDecimal(f+".amount", p.Amount, decimal.Zero, v)
		if p.PaymentDate.IsZero() {
			v.Add(f+".payment_date", "required")
			continue
		}
		d := models.DateOf(p.PaymentDate)
		if !orderDate.IsZero() {
			validation.NotBefore(f+".payment_date", d, orderDate, "before_order_date", v)
		}
		validation.NotAfter(f+".payment_date", d, today, "in_future", v)
	}
	return nil
}

// loadByID fills out with the rows of T whose id is in ids.
func loadByID[T any](tx *gorm.DB, ids []uint, out map[uint]T) error {
	if len(ids) == 0 {
		return nil
	}
	var rows []T
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		out[idOf(r)] = r
	}
	return nil
}

func idOf(row any) uint {
	switch r := row.(type) {
	case models.Item:
		return r.ID
	case models.Category:
		return r.ID
	case models.Subcategory:
		return r.ID
	case models.PaymentMethod:
		return r.ID
	}
	return 0
}

// insertHeader creates the order row. Without an explicit number the next
// OT-YYYY-NNNN is allocated, retrying past numbers taken concurrently.
func insertHeader(tx *gorm.DB, o *models.WorkOrder, number string) error {
	create := func() error {
		o.ID = 0
		return tx.Transaction(func(sp *gorm.DB) error {
			return sp.Omit(clause.Associations).Create(o).Error
		})
	}
	if number != "" {
		o.OrderNumber = &number
		err := create()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("order number %s already in use", number)
		}
		return err
	}
	year := o.OrderDate.Year()
	seq, err := models.NextOrderSequence(tx, year)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < 5; attempt++ {
		n := models.FormatOrderNumber(year, seq+attempt)
		o.OrderNumber = &n
		err = create()
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return apperr.Conflict("could not allocate an order number for %d", year)
}

func insertLines(tx *gorm.DB, orderID uint, lines []LineInput) error {
	for _, l := range lines {
		line := models.OrderLine{
			OrderID:              orderID,
			ItemID:               l.ItemID,
			Note:                 strings.TrimSpace(l.Note),
			UnitValue:            l.UnitValue.Round(2),
			Quantity:             l.Quantity,
			InstallationIncluded: l.InstallationIncluded,
		}
		if err := tx.Omit(clause.Associations).Create(&line).Error; err != nil {
			return err
		}
		if len(l.Attributes) == 0 {
			continue
		}
		attrs := make([]models.LineAttribute, 0, len(l.Attributes))
		for _, a := range l.Attributes {
			attrs = append(attrs, models.LineAttribute{LineID: line.ID, CategoryID: a.CategoryID, SubcategoryID: a.SubcategoryID})
		}
		if err := tx.Create(&attrs).Error; err != nil {
			return err
		}
	}
	return nil
}

func deleteLines(tx *gorm.DB, orderID uint) error {
	lineIDs := tx.Model(&models.OrderLine{}).Select("id").Where("order_id = ?", orderID)
	if err := tx.Where("line_id IN (?)", lineIDs).Delete(&models.LineAttribute{}).Error; err != nil {
		return err
	}
	return tx.Where("order_id = ?", orderID).Delete(&models.OrderLine{}).Error
}

func insertPayments(tx *gorm.DB, orderID uint, payments []PaymentInput) ([]models.Payment, error) {
	out := make([]models.Payment, 0, len(payments))
	for _, p := range payments {
		out = append(out, newPayment(orderID, p))
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := tx.Create(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func newPayment(orderID uint, p PaymentInput) models.Payment {
	paid := true
	if p.Paid != nil {
		paid = *p.Paid
	}
	return models.Payment{
		OrderID:         orderID,
		PaymentMethodID: p.PaymentMethodID,
		Amount:          p.Amount.Round(2),
		PaymentDate:     models.DateOf(p.PaymentDate),
		Paid:            paid,
		Note:            strings.TrimSpace(p.Note),
	}
}

func paymentInputs(ps []models.Payment) []PaymentInput {
	out := make([]PaymentInput, 0, len(ps))
	for _, p := range ps {
		paid := p.Paid
		out = append(out, PaymentInput{
			PaymentMethodID: p.PaymentMethodID,
			Amount:          p.Amount,
			PaymentDate:     p.PaymentDate,
			Paid:            &paid,
			Note:            p.Note,
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
