package validation

import (
	"errors"
	"testing"

	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/stretchr/testify/assert"
)

type payload struct {
	Name     string  `form:"name" validate:"required,max=5"`
	Status   string  `json:"status" validate:"omitempty,oneof=draft active"`
	Quantity int     `validate:"min=0"`
	Price    float64 `json:"price,omitempty" validate:"max=10"`
}

func TestStruct(t *testing.T) {
	assert.Nil(t, Struct(payload{Name: "bolt"}))

	fe := Struct(payload{Name: "too long", Status: "gone", Quantity: -1, Price: 11})
	assert.Equal(t, errs.FieldErrors{
		"name":     {"must not exceed 5 characters"},
		"status":   {"must be one of: draft active"},
		"quantity": {"must be at least 0"},
		"price":    {"must not exceed 10"},
	}, fe)

	assert.Equal(t, errs.FieldErrors{"name": {"is required"}}, Struct(payload{}))
}

type selfChecking struct {
	fail error
}

func (s selfChecking) Validate() error {
	return s.fail
}

func TestCheck(t *testing.T) {
	assert.Nil(t, Check(selfChecking{}))

	custom := CustomValidationErrors{{Field: "attachment", Message: "is too large"}}
	assert.Equal(t, errs.FieldErrors{"attachment": {"is too large"}}, Check(selfChecking{fail: custom}))

	assert.Equal(t,
		errs.FieldErrors{errs.NonFieldKey: {"names clash"}},
		Check(selfChecking{fail: errors.New("names clash")}))
}
