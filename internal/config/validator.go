package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error if validation fails, with actionable error
// messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateTieringThresholds(); err != nil {
		return err
	}

	return nil
}

// validateTieringThresholds ensures the promotion ladder is monotone: the
// OptimizedJIT threshold must exceed the BaselineJIT threshold, since a
// policy passes through BaselineJIT before it can qualify for
// OptimizedJIT.
func (c *Config) validateTieringThresholds() error {
	if !c.Tiering.Enabled {
		return nil
	}
	if c.Tiering.OptimizedJITThreshold <= c.Tiering.BaselineJITThreshold {
		return fmt.Errorf(
			"tiering: optimized_jit_threshold (%d) must exceed baseline_jit_threshold (%d)",
			c.Tiering.OptimizedJITThreshold, c.Tiering.BaselineJITThreshold,
		)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
