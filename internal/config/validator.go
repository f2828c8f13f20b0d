package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the ratelimit-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: a time.ParseDuration string of at least one millisecond
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= time.Millisecond
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateAlgorithmParameters(); err != nil {
		return err
	}
	return c.validateStore()
}

// validateAlgorithmParameters ensures the fields the selected algorithm
// reads are set.
func (c *Config) validateAlgorithmParameters() error {
	a := c.Algorithm
	if a.Type == "token_bucket" {
		if a.MaxTokens <= 0 || a.RefillRate <= 0 || a.Interval == "" {
			return errors.New("algorithm: token_bucket requires max_tokens, refill_rate and interval")
		}
		return nil
	}
	if a.Tokens <= 0 || a.Window == "" {
		return fmt.Errorf("algorithm: %s requires tokens and window", a.Type)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Type {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store: redis requires redis.addr")
		}
	case "sqlite":
		if c.Store.SQLite.DSN == "" {
			return errors.New("store: sqlite requires sqlite.dsn")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration of at least 1ms (e.g. \"10s\")", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
