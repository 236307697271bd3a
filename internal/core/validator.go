package core

import (
	"github.com/go-playground/validator/v10"

	"cronwatch/internal/types"
)

// Validator wraps go-playground/validator with the domain rules used by the
// request payloads.
//
// Registered custom tags:
//   - checkin_status: a status an external caller may submit
//     (in_progress, ok, error); empty passes (defaulted by the recorder).
//   - schedule_type: crontab or interval; empty fails.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the custom tags registered.
func NewValidator() *Validator {
	v := validator.New()

	// Registration only fails for empty tag names or nil funcs.
	_ = v.RegisterValidation("checkin_status", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		return types.ValidUserCheckInStatus(types.CheckInStatus(s))
	})
	_ = v.RegisterValidation("schedule_type", func(fl validator.FieldLevel) bool {
		switch types.ScheduleType(fl.Field().String()) {
		case types.ScheduleTypeCrontab, types.ScheduleTypeInterval:
			return true
		}
		return false
	})

	return &Validator{validate: v}
}

// ValidateStruct validates a request payload struct, translating failures
// into a single validation AppError with per-field details.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}
