package services

import (
	"sync"
	"testing"

	"github.com/diewo77/go-workshop/internal/apperr"
	"github.com/diewo77/go-workshop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCreatesClientVehicleAndLink(t *testing.T) {
	f := newFixture(t)
	ref, err := f.parties.Resolve(t.Context(), PartyInput{
		NewClient:  &NewClient{FirstName: " Marta ", LastName: "Gil", Email: "Marta@Example.com"},
		NewVehicle: &NewVehicle{Plate: "xy 99-1", Brand: "Kia", Year: 2019},
	})
	require.NoError(t, err)
	assert.True(t, ref.ClientCreated)
	assert.True(t, ref.VehicleCreated)

	var c models.Client
	require.NoError(t, f.db.First(&c, ref.ClientID).Error)
	assert.Equal(t, "Marta", c.FirstName)
	assert.Equal(t, "marta@example.com", c.Email)
	var v models.Vehicle
	require.NoError(t, f.db.First(&v, ref.VehicleID).Error)
	assert.Equal(t, "XY991", v.Plate)
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first, err := f.parties.Resolve(t.Context(), PartyInput{
		NewClient:  &NewClient{FirstName: "Ana", LastName: "Soto"},
		NewVehicle: &NewVehicle{Plate: "IDEM01"},
	})
	require.NoError(t, err)

	again, err := f.parties.Link(t.Context(), first.ClientID, first.VehicleID)
	require.NoError(t, err)
	assert.Equal(t, first.LinkID, again.LinkID)
	assert.False(t, again.ClientCreated)
	assert.False(t, again.VehicleCreated)

	var n int64
	require.NoError(t, f.db.Model(&models.ClientVehicleLink{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestResolveConcurrentLink(t *testing.T) {
	f := newFixture(t)
	base, err := f.parties.Resolve(t.Context(), PartyInput{
		NewClient:  &NewClient{FirstName: "Ana", LastName: "Soto"},
		NewVehicle: &NewVehicle{Plate: "CONC01"},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]uint, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := f.parties.Link(t.Context(), base.ClientID, base.VehicleID)
			errs[i] = err
			if err == nil {
				ids[i] = ref.LinkID
			}
		}(i)
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, base.LinkID, ids[i])
	}
}

func TestResolveValidation(t *testing.T) {
	f := newFixture(t)
	clientID := uint(1)

	tests := []struct {
		name  string
		in    PartyInput
		field string
		code  string
	}{
		{"no client", PartyInput{NewVehicle: &NewVehicle{Plate: "A1"}}, "client", "exactly_one_of_id_or_new"},
		{"both client forms", PartyInput{ClientID: &clientID, NewClient: &NewClient{FirstName: "a", LastName: "b"}, NewVehicle: &NewVehicle{Plate: "A1"}}, "client", "exactly_one_of_id_or_new"},
		{"no vehicle", PartyInput{NewClient: &NewClient{FirstName: "a", LastName: "b"}}, "vehicle", "exactly_one_of_id_or_new"},
		{"missing name", PartyInput{NewClient: &NewClient{FirstName: "a"}, NewVehicle: &NewVehicle{Plate: "A1"}}, "new_client.last_name", "required"},
		{"bad email", PartyInput{NewClient: &NewClient{FirstName: "a", LastName: "b", Email: "nope"}, NewVehicle: &NewVehicle{Plate: "A1"}}, "new_client.email", "invalid_email"},
		{"missing plate", PartyInput{NewClient: &NewClient{FirstName: "a", LastName: "b"}, NewVehicle: &NewVehicle{}}, "new_vehicle.plate", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.parties.Resolve(t.Context(), tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tt.code, apperr.ViolationsOf(err)[tt.field], "violations: %v", apperr.ViolationsOf(err))
		})
	}
}

func TestResolveDuplicatePlate(t *testing.T) {
	f := newFixture(t)
	f.link(t, "DUP-001")
	_, err := f.parties.Resolve(t.Context(), PartyInput{
		NewClient:  &NewClient{FirstName: "Otro", LastName: "Cliente"},
		NewVehicle: &NewVehicle{Plate: "dup001"},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "already_exists", apperr.ViolationsOf(err)["new_vehicle.plate"])

	var n int64
	require.NoError(t, f.db.Model(&models.Client{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "client creation rolled back")
}

func TestResolveUnknownIDs(t *testing.T) {
	f := newFixture(t)
	missing := uint(999)
	_, err := f.parties.Resolve(t.Context(), PartyInput{ClientID: &missing, NewVehicle: &NewVehicle{Plate: "NF1"}})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
