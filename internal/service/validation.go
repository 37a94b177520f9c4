package service

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/go-playground/validator/v10"
)

var mobilePattern = regexp.MustCompile(`^(?:\+964|00964|0)?7(7|8|9|5)\d{8}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "order_type", func(fl validator.FieldLevel) bool {
		return models.ValidOrderType(fl.Field().String())
	})
	mustRegister(v, "delivery_method", func(fl validator.FieldLevel) bool {
		return models.ValidDeliveryMethod(fl.Field().String())
	})
	return v
}

// mustRegister panics on a bad tag so a broken rule fails at startup, not per request
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// Validate runs struct validation and maps failures to a VALIDATION_ERROR with per-field details.
func Validate(dest any) error {
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *apperr.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return apperr.New(apperr.CodeValidation, "validation failed").WithDetails(details)
	}
	return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "mobile":
		return "must be a valid mobile number"
	case "order_type":
		return "must be one of normal wholesale replacement exchange cancellation"
	case "delivery_method":
		return "must be one of delivery pickup"
	}
	return "is invalid"
}
