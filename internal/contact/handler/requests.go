package handler

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"contactsvc/internal/contact/models"
	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/platform/httputil"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9\s-]{10,}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// IdentifyRequest is the body of POST /identify. Blank values count as
// absent.
type IdentifyRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,phone"`
}

var fieldMessages = map[string]string{
	"email":       "Invalid email format",
	"phoneNumber": "Invalid phone number format",
}

// Normalize trims surrounding whitespace and drops blank values.
func (r *IdentifyRequest) Normalize() {
	r.Email = blankToNil(r.Email)
	r.PhoneNumber = blankToNil(r.PhoneNumber)
}

// Validate reports malformed values per JSON field. Presence is checked by
// the service.
func (r *IdentifyRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request")
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := jsonName(fe.StructField())
		msg, ok := fieldMessages[name]
		if !ok {
			msg = "failed " + fe.Tag() + " validation"
		}
		fields[name] = append(fields[name], msg)
	}
	return dErrors.Wrap(&httputil.FieldError{Fields: fields}, dErrors.CodeValidation, "invalid request content")
}

func (r *IdentifyRequest) Submission() models.Submission {
	return models.Submission{Email: r.Email, PhoneNumber: r.PhoneNumber}
}

func jsonName(field string) string {
	switch field {
	case "Email":
		return "email"
	case "PhoneNumber":
		return "phoneNumber"
	}
	return field
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
