// Package validation collects field-level violations for caller input.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Violations maps a field path to a short machine-readable code.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records a violation, keeping the first code reported for a field.
func (v Violations) Add(field, code string) {
	if _, ok := v[field]; !ok {
		v[field] = code
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under their JSON names so violations match request payloads.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func RequiredID(field string, id uint, v Violations) {
	if id == 0 {
		v.Add(field, "required")
	}
}

// MinDecimal rejects values strictly below min.
func MinDecimal(field string, val, min decimal.Decimal, v Violations) {
	if val.LessThan(min) {
		v.Add(field, "below_minimum")
	}
}

func MinInt(field string, val, min int, v Violations) {
	if val < min {
		v.Add(field, "below_minimum")
	}
}

// NotBefore requires date to be on or after ref.
func NotBefore(field string, date, ref time.Time, code string, v Violations) {
	if date.Before(ref) {
		v.Add(field, code)
	}
}

// NotAfter requires date to be on or before ref.
func NotAfter(field string, date, ref time.Time, code string, v Violations) {
	if date.After(ref) {
		v.Add(field, code)
	}
}

// Struct runs the `validate` tags of s and records one violation per failing
// field, prefixed with prefix (e.g. "client.email").
func Struct(prefix string, s any, v Violations) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.Add(prefix, "invalid")
		return
	}
	for _, fe := range verrs {
		field := fieldName(fe)
		if prefix != "" {
			field = prefix + "." + field
		}
		v.Add(field, codeFor(fe.Tag()))
	}
}

func fieldName(fe validator.FieldError) string {
	return fe.Field()
}

func codeFor(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "invalid_email"
	case "min", "gte", "gt":
		return "below_minimum"
	case "max", "lte", "lt":
		return "above_maximum"
	default:
		return "invalid"
	}
}
