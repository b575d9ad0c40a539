package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindsMatchExactlyOneSentinel(t *testing.T) {
	sentinels := []error{ErrValidation, ErrReferentialIntegrity, ErrConflict, ErrNotFound, ErrAlreadyClosed, ErrStorage}
	cases := map[error]error{
		Field("amount", "required"):         ErrValidation,
		Referenced("item", 3, "order line"): ErrReferentialIntegrity,
		Conflict("cashbox exists"):          ErrConflict,
		NotFound("order", 9):                ErrNotFound,
		AlreadyClosed("cashbox closed"):     ErrAlreadyClosed,
		Storage("insert", errors.New("io")): ErrStorage,
	}
	for err, kind := range cases {
		for _, s := range sentinels {
			assert.Equal(t, s == kind, errors.Is(err, s), "%v vs %v", err, s)
		}
	}
}

func TestStorageClassification(t *testing.T) {
	assert.ErrorIs(t, Storage("load", gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, Storage("insert", gorm.ErrDuplicatedKey), ErrConflict)
	assert.ErrorIs(t, Storage("lock", fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "55P03"})), ErrConflict)
	assert.ErrorIs(t, Storage("lock", &pgconn.PgError{Code: "23503"}), ErrStorage)
	assert.NoError(t, Storage("noop", nil))

	orig := NotFound("order", 1)
	assert.Same(t, orig, Storage("reload", orig))
}

func TestStorageKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("insert movement", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert movement: disk full", err.Error())
}

func TestViolationsOf(t *testing.T) {
	err := fmt.Errorf("create: %w", Field("delivery_date", "before_order_date"))
	assert.Equal(t, "before_order_date", ViolationsOf(err)["delivery_date"])
	assert.Nil(t, ViolationsOf(errors.New("plain")))
}
