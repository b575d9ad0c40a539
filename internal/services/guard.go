package services

import (
	"context"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Kind names a guarded catalog or party entity.
type Kind string

const (
	KindClient        Kind = "client"
	KindVehicle       Kind = "vehicle"
	KindLink          Kind = "link"
	KindItem          Kind = "item"
	KindCategory      Kind = "category"
	KindSubcategory   Kind = "subcategory"
	KindInsurer       Kind = "insurer"
	KindPaymentMethod Kind = "payment_method"
	KindConcept       Kind = "concept"
)

// Kinds lists every guarded kind.
var Kinds = []Kind{
	KindClient, KindVehicle, KindLink,
	KindItem, KindCategory, KindSubcategory,
	KindInsurer, KindPaymentMethod, KindConcept,
}

// ParseKind validates a kind coming from a URL or payload.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// reference is one place a kind can be referenced from.
type reference struct {
	by    string
	query func(tx *gorm.DB, id uint) *gorm.DB
}

func countWhere(model any, cond string) func(*gorm.DB, uint) *gorm.DB {
	return func(tx *gorm.DB, id uint) *gorm.DB {
		return tx.Model(model).Where(cond, id)
	}
}

var references = map[Kind][]reference{
	KindClient: {{"work order", func(tx *gorm.DB, id uint) *gorm.DB {
		return tx.Model(&models.WorkOrder{}).
			Joins("JOIN client_vehicle_links ON client_vehicle_links.id = work_orders.link_id").
			Where("client_vehicle_links.client_id = ?", id)
	}}},
	KindVehicle: {{"work order", func(tx *gorm.DB, id uint) *gorm.DB {
		return tx.Model(&models.WorkOrder{}).
			Joins("JOIN client_vehicle_links ON client_vehicle_links.id = work_orders.link_id").
			Where("client_vehicle_links.vehicle_id = ?", id)
	}}},
	KindLink:        {{"work order", countWhere(&models.WorkOrder{}, "link_id = ?")}},
	KindItem:        {{"order line", countWhere(&models.OrderLine{}, "item_id = ?")}},
	KindCategory:    {{"order line attribute", countWhere(&models.LineAttribute{}, "category_id = ?")}},
	KindSubcategory: {{"order line attribute", countWhere(&models.LineAttribute{}, "subcategory_id = ?")}},
	KindInsurer:     {{"work order", countWhere(&models.WorkOrder{}, "insurer_id = ?")}},
	KindPaymentMethod: {
		{"payment", countWhere(&models.Payment{}, "payment_method_id = ?")},
		{"ledger movement", countWhere(&models.LedgerMovement{}, "payment_method_id = ?")},
	},
	KindConcept: {{"ledger movement", countWhere(&models.LedgerMovement{}, "concept_id = ?")}},
}

func modelFor(k Kind) any {
	switch k {
	case KindClient:
		return &models.Client{}
	case KindVehicle:
		return &models.Vehicle{}
	case KindLink:
		return &models.ClientVehicleLink{}
	case KindItem:
		return &models.Item{}
	case KindCategory:
		return &models.Category{}
	case KindSubcategory:
		return &models.Subcategory{}
	case KindInsurer:
		return &models.Insurer{}
	case KindPaymentMethod:
		return &models.PaymentMethod{}
	case KindConcept:
		return &models.Concept{}
	}
	return nil
}

// ReferenceGuard answers "may this entity be removed?" for the catalog layer
// and performs the removal when it may.
type ReferenceGuard struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewReferenceGuard(db *gorm.DB, log logrus.FieldLogger) *ReferenceGuard {
	return &ReferenceGuard{db: db, log: log}
}

// IsReferenced reports whether any order data points at (kind, id).
func (g *ReferenceGuard) IsReferenced(ctx context.Context, kind Kind, id uint) (bool, error) {
	by, err := referencedBy(g.db.WithContext(ctx), kind, id)
	if err != nil {
		return false, apperr.Storage("check references", err)
	}
	return by != "", nil
}

// Check returns a ReferentialIntegrity error when (kind, id) is in use.
func (g *ReferenceGuard) Check(ctx context.Context, kind Kind, id uint) error {
	return apperr.Storage("check references", checkTx(g.db.WithContext(ctx), kind, id))
}

// Delete removes (kind, id) after checking references. Deleting an item also
// removes its categories and subcategories, each checked first; deleting a
// client or vehicle removes its unused links.
func (g *ReferenceGuard) Delete(ctx context.Context, kind Kind, id uint) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := modelFor(kind)
		if model == nil {
			return apperr.Field("kind", "unknown")
		}
		ok, err := exists(tx, model, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound(string(kind), id)
		}
		return deleteTx(tx, kind, id)
	})
	if err != nil {
		return apperr.Storage("delete "+string(kind), err)
	}
	g.log.WithFields(logrus.Fields{"kind": kind, "id": id}).Info("catalog entry deleted")
	return nil
}

func deleteTx(tx *gorm.DB, kind Kind, id uint) error {
	if err := checkTx(tx, kind, id); err != nil {
		return err
	}
	switch kind {
	case KindItem:
		var ids []uint
		if err := tx.Model(&models.Category{}).Where("item_id = ?", id).Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, cid := range ids {
			if err := deleteTx(tx, KindCategory, cid); err != nil {
				return err
			}
		}
	case KindCategory:
		var ids []uint
		if err := tx.Model(&models.Subcategory{}).Where("category_id = ?", id).Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, sid := range ids {
			if err := deleteTx(tx, KindSubcategory, sid); err != nil {
				return err
			}
		}
	case KindClient:
		if err := tx.Where("client_id = ?", id).Delete(&models.ClientVehicleLink{}).Error; err != nil {
			return err
		}
	case KindVehicle:
		if err := tx.Where("vehicle_id = ?", id).Delete(&models.ClientVehicleLink{}).Error; err != nil {
			return err
		}
	}
	return tx.Delete(modelFor(kind), id).Error
}

func checkTx(tx *gorm.DB, kind Kind, id uint) error {
	by, err := referencedBy(tx, kind, id)
	if err != nil {
		return err
	}
	if by != "" {
		return apperr.Referenced(string(kind), id, by)
	}
	return nil
}

func referencedBy(tx *gorm.DB, kind Kind, id uint) (string, error) {
	refs, ok := references[kind]
	if !ok {
		return "", apperr.Field("kind", "unknown")
	}
	for _, ref := range refs {
		var n int64
		if err := ref.query(tx, id).Count(&n).Error; err != nil {
			return "", err
		}
		if n > 0 {
			return ref.by, nil
		}
	}
	return "", nil
}
