package services

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewClient is the payload for a client created during resolution.
type NewClient struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email,max=150"`
	Phone     string `json:"phone" validate:"max=30"`
	TaxID     string `json:"tax_id" validate:"max=30"`
}

// NewVehicle is the payload for a vehicle created during resolution.
type NewVehicle struct {
	Plate string `json:"plate" validate:"required,max=20"`
	Brand string `json:"brand" validate:"max=60"`
	Model string `json:"model" validate:"max=60"`
	Year  int    `json:"year" validate:"omitempty,gte=1900,lte=2100"`
	Color string `json:"color" validate:"max=40"`
}

// PartyInput names a client and a vehicle, each either by id or as new data.
type PartyInput struct {
	ClientID   *uint       `json:"client_id,omitempty"`
	NewClient  *NewClient  `json:"new_client,omitempty"`
	VehicleID  *uint       `json:"vehicle_id,omitempty"`
	NewVehicle *NewVehicle `json:"new_vehicle,omitempty"`
}

// LinkRef identifies the resolved client-vehicle pair.
type LinkRef struct {
	LinkID         uint `json:"link_id"`
	ClientID       uint `json:"client_id"`
	VehicleID      uint `json:"vehicle_id"`
	ClientCreated  bool `json:"client_created"`
	VehicleCreated bool `json:"vehicle_created"`
}

// PartyResolver maps (client, vehicle) inputs onto a ClientVehicleLink,
// creating whatever does not exist yet.
type PartyResolver struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewPartyResolver(db *gorm.DB, log logrus.FieldLogger) *PartyResolver {
	return &PartyResolver{db: db, log: log}
}

// Resolve runs all creations in a single transaction: a failure leaves no
// half-created client or vehicle behind.
func (r *PartyResolver) Resolve(ctx context.Context, in PartyInput) (*LinkRef, error) {
	var ref *LinkRef
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ref, err = r.resolveTx(tx, in)
		return err
	})
	if err != nil {
		return nil, apperr.Storage("resolve party", err)
	}
	return ref, nil
}

// Link returns the link for an existing client and vehicle, creating it if needed.
func (r *PartyResolver) Link(ctx context.Context, clientID, vehicleID uint) (*LinkRef, error) {
	return r.Resolve(ctx, PartyInput{ClientID: &clientID, VehicleID: &vehicleID})
}

func (r *PartyResolver) resolveTx(tx *gorm.DB, in PartyInput) (*LinkRef, error) {
	v := validation.Violations{}
	if (in.ClientID == nil) == (in.NewClient == nil) {
		v.Add("client", "exactly_one_of_id_or_new")
	}
	if (in.VehicleID == nil) == (in.NewVehicle == nil) {
		v.Add("vehicle", "exactly_one_of_id_or_new")
	}
	if in.NewClient != nil {
		validation.Struct("new_client", in.NewClient, v)
	}
	if in.NewVehicle != nil {
		validation.Struct("new_vehicle", in.NewVehicle, v)
	}
	if !v.Empty() {
		return nil, apperr.Validation(v)
	}

	ref := &LinkRef{}
	if in.ClientID != nil {
		ok, err := exists(tx, &models.Client{}, *in.ClientID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("client", *in.ClientID)
		}
		ref.ClientID = *in.ClientID
	}
	if in.VehicleID != nil {
		ok, err := exists(tx, &models.Vehicle{}, *in.VehicleID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("vehicle", *in.VehicleID)
		}
		ref.VehicleID = *in.VehicleID
	}

	if in.NewVehicle != nil {
		plate := NormalizePlate(in.NewVehicle.Plate)
		var n int64
		if err := tx.Model(&models.Vehicle{}).Where("plate = ?", plate).Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.Field("new_vehicle.plate", "already_exists")
		}
		veh := models.Vehicle{
			Plate: plate,
			Brand: strings.TrimSpace(in.NewVehicle.Brand),
			Model: strings.TrimSpace(in.NewVehicle.Model),
			Year:  in.NewVehicle.Year,
			Color: strings.TrimSpace(in.NewVehicle.Color),
		}
		if err := tx.Create(&veh).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, apperr.Field("new_vehicle.plate", "already_exists")
			}
			return nil, err
		}
		ref.VehicleID, ref.VehicleCreated = veh.ID, true
	}
	if in.NewClient != nil {
		c := models.Client{
			FirstName: strings.TrimSpace(in.NewClient.FirstName),
			LastName:  strings.TrimSpace(in.NewClient.LastName),
			Email:     strings.ToLower(strings.TrimSpace(in.NewClient.Email)),
			Phone:     strings.TrimSpace(in.NewClient.Phone),
			TaxID:     strings.TrimSpace(in.NewClient.TaxID),
		}
		if err := tx.Create(&c).Error; err != nil {
			return nil, err
		}
		ref.ClientID, ref.ClientCreated = c.ID, true
	}

	link, err := linkTx(tx, ref.ClientID, ref.VehicleID)
	if err != nil {
		return nil, err
	}
	ref.LinkID = link.ID
	r.log.WithFields(logrus.Fields{
		"link_id":         ref.LinkID,
		"client_id":       ref.ClientID,
		"vehicle_id":      ref.VehicleID,
		"client_created":  ref.ClientCreated,
		"vehicle_created": ref.VehicleCreated,
	}).Debug("party resolved")
	return ref, nil
}

// linkTx gets or creates the (client, vehicle) link. The insert runs in a
// savepoint so a concurrent winner's unique-index hit does not abort tx.
func linkTx(tx *gorm.DB, clientID, vehicleID uint) (*models.ClientVehicleLink, error) {
	var link models.ClientVehicleLink
	err := tx.Where("client_id = ? AND vehicle_id = ?", clientID, vehicleID).First(&link).Error
	if err == nil {
		return &link, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	link = models.ClientVehicleLink{ClientID: clientID, VehicleID: vehicleID}
	err = tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&link).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		link = models.ClientVehicleLink{}
		err = tx.Where("client_id = ? AND vehicle_id = ?", clientID, vehicleID).First(&link).Error
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// NormalizePlate upper-cases a plate and strips spaces and dashes.
func NormalizePlate(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	return strings.NewReplacer(" ", "", "-", "").Replace(p)
}
