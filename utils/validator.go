package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dzoniops/condo-booking/models"
)

// NewValidator builds the validator used for engine inputs. models.Date
// fields validate as time.Time, and the notpast tag compares a date with
// today in loc as seen by now.
func NewValidator(now func() time.Time, loc *time.Location) *validator.Validate {
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(models.Date); ok {
			return d.Time()
		}
		return nil
	}, models.Date{})
	_ = v.RegisterValidation("notpast", dateNotInPast(now, loc))
	return v
}

func dateNotInPast(now func() time.Time, loc *time.Location) validator.Func {
	return func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return !models.Normalize(t).Before(models.Today(now(), loc))
	}
}

// ValidationError turns the first validator failure into a
// models.ValidationError. Other errors are returned unchanged.
func ValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return models.NewValidationError(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notpast":
		return "must not be in the past"
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
