package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/stockroom/internal/types"
)

// FieldError represents a single field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input fails validation. It names every
// offending field and is never retried.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// New returns a ValidationError for a single field.
func New(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []FieldError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *FieldError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []FieldError {
	return c.errors
}

// Err returns the accumulated failures as a *ValidationError, or nil.
func (c *Collector) Err() error {
	if !c.HasErrors() {
		return nil
	}
	return &ValidationError{Fields: c.errors}
}

// ValidateText checks a free-text field: valid UTF-8, no null bytes, and at
// most max runes.
func ValidateText(field, value string, max int) *FieldError {
	if err := ValidateUTF8(field, value); err != nil {
		return err
	}
	if err := ValidateNoNullBytes(field, value); err != nil {
		return err
	}
	return ValidateMaxLength(field, value, max)
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *FieldError {
	if !utf8.ValidString(value) {
		return &FieldError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *FieldError {
	if strings.Contains(value, "\x00") {
		return &FieldError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *FieldError {
	if utf8.RuneCountInString(value) > max {
		return &FieldError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *FieldError {
	if strings.TrimSpace(value) == "" {
		return &FieldError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *FieldError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &FieldError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositiveInt returns an error unless value > 0.
func ValidatePositiveInt(field string, value int) *FieldError {
	if value <= 0 {
		return &FieldError{
			Field:   field,
			Message: "must be a positive integer",
		}
	}
	return nil
}

// ValidateNonNegativeInt returns an error if value < 0.
func ValidateNonNegativeInt(field string, value int) *FieldError {
	if value < 0 {
		return &FieldError{
			Field:   field,
			Message: "must not be negative",
		}
	}
	return nil
}

// ValidatePositive returns an error unless value > 0.
func ValidatePositive(field string, value float64) *FieldError {
	if value <= 0 {
		return &FieldError{
			Field:   field,
			Message: "must be greater than zero",
		}
	}
	return nil
}

// ParseDate parses a required calendar date, collecting a failure into c.
func ParseDate(c *Collector, field, value string) types.Date {
	if strings.TrimSpace(value) == "" {
		c.Add(&FieldError{Field: field, Message: "is required"})
		return types.Date{}
	}
	return ParseOptionalDate(c, field, value)
}

// ParseOptionalDate parses a calendar date; an empty value yields the zero Date.
func ParseOptionalDate(c *Collector, field, value string) types.Date {
	if strings.TrimSpace(value) == "" {
		return types.Date{}
	}
	d, err := types.ParseDate(value)
	if err != nil {
		c.Add(&FieldError{
			Field:   field,
			Message: "must be a date (YYYY-MM-DD, RFC 3339 or DD/MM/YYYY)",
		})
	}
	return d
}
