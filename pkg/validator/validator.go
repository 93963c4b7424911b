package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds JSON bodies accepted by DecodeAndValidate.
const maxBodyBytes = 64 << 10

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under the name the client sent them with.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Validate checks s against its `validate` tags. Rule failures come back
// as a *ValidationError.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// ValidationError lists the fields a form failed on.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fmt.Sprintf("field '%s' %s", fe.Field(), msgForTag(fe))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a map of field names to error messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Field()] = msgForTag(fe)
	}
	return fields
}

// First returns one "field message" line, choosing the alphabetically first
// field so the result is stable across runs.
func (e *ValidationError) First() string {
	var first validator.FieldError
	for _, fe := range e.Errors {
		if first == nil || fe.Field() < first.Field() {
			first = fe
		}
	}
	if first == nil {
		return ""
	}
	return first.Field() + " " + msgForTag(first)
}

// messages phrase a failed rule for display next to the field.
var messages = map[string]func(fe validator.FieldError) string{
	"required": fixed("is required"),
	"email":    fixed("must be a valid email address"),
	"uuid":     fixed("must be a valid UUID"),
	"url":      fixed("must be a valid URL"),
	"min":      bound("at least"),
	"max":      bound("at most"),
	"gte":      param("must be greater than or equal to %s"),
	"lte":      param("must be less than or equal to %s"),
	"oneof":    param("must be one of: %s"),
}

func fixed(msg string) func(validator.FieldError) string {
	return func(validator.FieldError) string { return msg }
}

func param(format string) func(validator.FieldError) string {
	return func(fe validator.FieldError) string { return fmt.Sprintf(format, fe.Param()) }
}

// bound counts characters for strings and compares values for numbers.
func bound(word string) func(validator.FieldError) string {
	return func(fe validator.FieldError) string {
		if k := fe.Kind(); k >= reflect.Int && k <= reflect.Float64 {
			return fmt.Sprintf("must be %s %s", word, fe.Param())
		}
		return fmt.Sprintf("must be %s %s characters", word, fe.Param())
	}
}

func msgForTag(fe validator.FieldError) string {
	if msg, ok := messages[fe.Tag()]; ok {
		return msg(fe)
	}
	return fmt.Sprintf("failed on '%s' validation", fe.Tag())
}

// DecodeAndValidate reads JSON from the request body, decodes it into dst,
// and validates it. Unknown fields and bodies over 64KiB are rejected.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
