// Package validation wraps go-playground/validator with the custom tags used
// by rule definitions and configuration.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"url-rewrite/internal/common/errors"
)

// CentralizedValidator provides unified validation using go-playground/validator
type CentralizedValidator struct {
	validator *validator.Validate
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

var contextNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// NewCentralizedValidator creates a new validator instance with custom tags registered
func NewCentralizedValidator() *CentralizedValidator {
	v := validator.New()
	registerRewriteValidators(v)

	// Report json names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &CentralizedValidator{validator: v}
}

// ValidateStruct validates a struct using struct tags
func (cv *CentralizedValidator) ValidateStruct(s interface{}) error {
	if err := cv.validator.Struct(s); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// ValidateVar validates a single variable with validation rules
func (cv *CentralizedValidator) ValidateVar(field interface{}, tag string) error {
	if err := cv.validator.Var(field, tag); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// Errors validates s and returns every field failure
func (cv *CentralizedValidator) Errors(s interface{}) []ValidationError {
	err := cv.validator.Struct(s)
	if err == nil {
		return nil
	}
	return cv.extractValidationErrors(err)
}

func (cv *CentralizedValidator) formatValidationErrors(err error) error {
	validationErrors := cv.extractValidationErrors(err)
	if len(validationErrors) == 1 {
		return errors.ValidationError(validationErrors[0].Message)
	}

	messages := make([]string, len(validationErrors))
	for i, e := range validationErrors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func (cv *CentralizedValidator) extractValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldError.Field(),
				Tag:     fieldError.Tag(),
				Value:   fmt.Sprintf("%v", fieldError.Value()),
				Message: formatFieldError(fieldError),
				Param:   fieldError.Param(),
			})
		}
		return validationErrors
	}

	return append(validationErrors, ValidationError{
		Field:   "unknown",
		Tag:     "error",
		Message: err.Error(),
	})
}

func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", err.Field())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", err.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param())
	case "uuid":
		return fmt.Sprintf("field '%s' must be a valid UUID", err.Field())
	case "redirect_status":
		return fmt.Sprintf("field '%s' must be one of 301, 302, 303, 307", err.Field())
	case "cron_expression":
		return fmt.Sprintf("field '%s' must be a valid cron expression", err.Field())
	case "bus_type":
		return fmt.Sprintf("field '%s' must be a valid notification bus (local, redis, rabbitmq, kafka, aws, gcp)", err.Field())
	case "context_name":
		return fmt.Sprintf("field '%s' must be a valid context name", err.Field())
	case "duration":
		return fmt.Sprintf("field '%s' must be a valid duration", err.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", err.Field(), err.Tag())
	}
}

// BusTypes lists the supported notification bus transports
var BusTypes = []string{"local", "redis", "rabbitmq", "kafka", "aws", "gcp"}

func registerRewriteValidators(v *validator.Validate) {
	v.RegisterValidation("redirect_status", func(fl validator.FieldLevel) bool {
		switch fl.Field().Int() {
		case 301, 302, 303, 307:
			return true
		}
		return false
	})

	// Standard five-field cron plus descriptors such as @every 5m
	v.RegisterValidation("cron_expression", func(fl validator.FieldLevel) bool {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		_, err := parser.Parse(fl.Field().String())
		return err == nil
	})

	v.RegisterValidation("bus_type", func(fl validator.FieldLevel) bool {
		busType := fl.Field().String()
		for _, valid := range BusTypes {
			if busType == valid {
				return true
			}
		}
		return false
	})

	v.RegisterValidation("context_name", func(fl validator.FieldLevel) bool {
		return contextNamePattern.MatchString(fl.Field().String())
	})

	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
}

var globalValidator = NewCentralizedValidator()

// ValidateStruct validates a struct using the global validator instance
func ValidateStruct(s interface{}) error {
	return globalValidator.ValidateStruct(s)
}

// ValidateVar validates a variable using the global validator instance
func ValidateVar(field interface{}, tag string) error {
	return globalValidator.ValidateVar(field, tag)
}

// Errors returns every field failure of s using the global validator
func Errors(s interface{}) []ValidationError {
	return globalValidator.Errors(s)
}
