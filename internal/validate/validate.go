// Package validate holds the pure input checks run before any network
// call. All functions are side-effect-free; failures are reported as
// *ValidationError and block submission.
package validate

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"clipforge/internal/models"
)

// MaxPromptLength is the prompt size ceiling in runes
const MaxPromptLength = 4000

// ValidationError reports a rejected input field. Recoverable by
// correcting the input.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var paramValidator = newParamValidator()

func newParamValidator() *validator.Validate {
	v := validator.New()
	// Report json tag names so messages match the wire surface
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// IsValidUUID reports whether s is a canonical textual UUID. Gates
// clip and server ids before the backend ever sees them.
func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// SanitizeInput trims surrounding whitespace and strips control
// characters the backend rejects; newlines and tabs inside prompts are
// kept. Idempotent.
func SanitizeInput(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}

// PromptLength rejects prompts above MaxPromptLength runes
func PromptLength(field, s string) error {
	if n := len([]rune(s)); n > MaxPromptLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters (got %d)", MaxPromptLength, n),
		}
	}
	return nil
}

// GenerationParams range-checks the numeric generation knobs
func GenerationParams(p models.GenerationParams) error {
	if err := paramValidator.Struct(p); err != nil {
		return translate(err)
	}
	return nil
}

// AdvancedParams range-checks the optional pipeline stage knobs
func AdvancedParams(p models.AdvancedParams) error {
	if err := paramValidator.Struct(p); err != nil {
		return translate(err)
	}
	return nil
}

// LoRAs checks every selection's weight; the "none" sentinel is still
// subject to the weight range (the builder drops it later)
func LoRAs(selections []models.LoRASelection) error {
	for i, sel := range selections {
		if err := paramValidator.Struct(sel); err != nil {
			ve := translate(err)
			ve.Field = fmt.Sprintf("loras[%d].%s", i, ve.Field)
			return ve
		}
	}
	return nil
}

// translate converts the first validator failure into a ValidationError
// with a readable message
func translate(err error) *ValidationError {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return &ValidationError{Field: "params", Message: err.Error()}
	}

	e := errs[0]
	msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
	switch e.Tag() {
	case "min":
		msg = fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		msg = fmt.Sprintf("must be greater than %s", e.Param())
	case "required":
		msg = "is required"
	}
	return &ValidationError{Field: e.Field(), Message: msg}
}
