package validator

import (
	"errors"
	"fmt"
	"regexp"

	"qrparking/pkg/model"

	"github.com/go-playground/validator/v10"
)

var (
	slotIDRegex        = regexp.MustCompile(`^[A-Z]-\d{2}$`)
	vehicleNumberRegex = regexp.MustCompile(`^[A-Z0-9]+$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	return fmt.Sprintf("validation failed: %d error(s)", len(v))
}

// Details flattens the errors into a field -> message map for API responses.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, e := range v {
		details[e.Field] = e.Message
	}
	return details
}

type SlotValidator struct {
	validate *validator.Validate
}

func NewSlotValidator() *SlotValidator {
	v := validator.New()
	_ = v.RegisterValidation("slot_id", func(fl validator.FieldLevel) bool {
		return slotIDRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("vehicle_number", func(fl validator.FieldLevel) bool {
		return vehicleNumberRegex.MatchString(fl.Field().String())
	})

	return &SlotValidator{
		validate: v,
	}
}

// ValidateReserve expects the request to be sanitized already.
func (v *SlotValidator) ValidateReserve(req *model.ReserveRequest) error {
	return v.check(req)
}

func (v *SlotValidator) ValidateStatusUpdate(update *model.SlotStatusUpdate) error {
	return v.check(update)
}

func (v *SlotValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *SlotValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fieldName(err.Field()),
			Message: message(err),
		})
	}

	return validationErrors
}

func fieldName(field string) string {
	switch field {
	case "SlotID":
		return "slot_id"
	case "VehicleNumber":
		return "vehicle_number"
	case "Status":
		return "status"
	}
	return field
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "slot_id":
		return "must look like A-01"
	case "vehicle_number":
		return "must contain only letters and digits"
	}
	return fmt.Sprintf("failed on %s", err.Tag())
}
