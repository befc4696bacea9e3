package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func orderValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
		validate = v
	})
	return validate
}

// Validate checks the required field set in declaration order and reports the first failure.
// It never touches the network and does not mutate the receiver.
func (o OrderInput) Validate() error {
	candidate := o
	candidate.OrderID = strings.TrimSpace(candidate.OrderID)
	candidate.SessionID = strings.TrimSpace(candidate.SessionID)
	candidate.Currency = strings.ToUpper(strings.TrimSpace(candidate.Currency))

	err := orderValidator().Struct(candidate)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "order", Reason: err.Error()}
	}
	first := fieldErrs[0]
	return &ValidationError{Field: first.Field(), Reason: validationReason(first.Tag())}
}

func validationReason(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "gte":
		return "must not be negative"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	default:
		return "failed " + tag + " check"
	}
}
