package profile

import (
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	autherrors "github.com/jrsteele09/go-admin-console/internal/errors"
)

const minPasswordLength = 8

var ErrValidation = autherrors.ErrValidation

// ValidationError carries per field messages for a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CompletionForm is submitted from the onboarding completion page. Password is
// optional; invited visitors set one here before their first conventional login.
type CompletionForm struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password,omitempty"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

// Validate checks the form client side before anything is sent.
func (f CompletionForm) Validate() error {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&f.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&f.Password, validation.Length(minPasswordLength, 128)),
	)

	fields := map[string]string{}
	if errs, ok := err.(validation.Errors); ok {
		for name, fieldErr := range errs {
			fields[name] = fieldErr.Error()
		}
	} else if err != nil {
		return err
	}

	if f.Password != f.ConfirmPassword {
		fields["confirm_password"] = "passwords do not match"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
