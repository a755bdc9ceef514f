// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package leads

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\+?\d[\d\s\-()]{7,}$`)

// fieldLabels are the human readable names used in validation messages
var fieldLabels = map[string]string{
	"name":        "Name",
	"email":       "Email",
	"phone":       "Phone",
	"workType":    "Work type",
	"deadline":    "Deadline",
	"budget":      "Budget",
	"description": "Description",
	"source":      "Source",
	"status":      "Status",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// FieldError describes one rejected field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed validation
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// validateStruct runs the struct tags of s and converts failures to a *ValidationError
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: messageFor(fe)})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		if fe.Param() == "1" {
			return label + " is required"
		}
		return label + " too short"
	case "max":
		return label + " too long"
	case "email":
		return "Invalid email format"
	case "phone":
		return "Invalid phone format"
	case "status":
		return "Status must be one of: new, read, in_progress, closed, archived"
	default:
		return label + " is invalid"
	}
}

// Submission is the body of a public lead request
type Submission struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Email       string  `json:"email" validate:"required,max=100,email"`
	Phone       string  `json:"phone" validate:"omitempty,phone"`
	WorkType    string  `json:"workType" validate:"required,max=100"`
	Deadline    *string `json:"deadline"`
	Budget      *string `json:"budget" validate:"omitempty,max=50"`
	Description string  `json:"description" validate:"required,max=5000"`
	Source      string  `json:"source" validate:"max=100"`
	// Honeypot is a hidden form field; humans leave it empty
	Honeypot string `json:"honeypot"`
}

// IsSpam reports whether the honeypot field was filled in
func (s *Submission) IsSpam() bool {
	return strings.TrimSpace(s.Honeypot) != ""
}

// Normalize trims every text field and lower-cases the email
func (s *Submission) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	s.WorkType = strings.TrimSpace(s.WorkType)
	s.Description = strings.TrimSpace(s.Description)
	s.Source = strings.TrimSpace(s.Source)
	s.Deadline = trimmedOrNil(s.Deadline)
	s.Budget = trimmedOrNil(s.Budget)
}

// Validate checks a normalized submission
func (s *Submission) Validate() error {
	return validateStruct(s)
}

// Lead builds the record to insert. Status is always new.
func (s *Submission) Lead() Lead {
	l := Lead{
		Name:        s.Name,
		Email:       s.Email,
		WorkType:    s.WorkType,
		Deadline:    s.Deadline,
		Budget:      s.Budget,
		Description: s.Description,
		Status:      StatusNew,
	}
	if s.Phone != "" {
		l.Phone = &s.Phone
	}
	source := s.Source
	if source == "" {
		source = DefaultSource
	}
	l.Source = &source
	return l
}

// Update is a partial admin edit. Nil fields are left untouched; an empty
// string clears phone, deadline, budget and source.
type Update struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email       *string `json:"email" validate:"omitempty,email,max=100"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
	WorkType    *string `json:"workType" validate:"omitempty,min=1,max=100"`
	Deadline    *string `json:"deadline" validate:"omitempty,max=100"`
	Budget      *string `json:"budget" validate:"omitempty,max=50"`
	Description *string `json:"description" validate:"omitempty,min=1,max=5000"`
	Source      *string `json:"source" validate:"omitempty,max=50"`
	Status      *Status `json:"status" validate:"omitempty,status"`
}

// Normalize trims text fields and lower-cases the email
func (u *Update) Normalize() {
	for _, f := range []*string{u.Name, u.Phone, u.WorkType, u.Deadline, u.Budget, u.Description, u.Source} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if u.Email != nil {
		*u.Email = strings.ToLower(strings.TrimSpace(*u.Email))
	}
}

// Validate checks a normalized update
func (u *Update) Validate() error {
	return validateStruct(u)
}

// Empty reports whether the update changes nothing
func (u *Update) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.WorkType == nil &&
		u.Deadline == nil && u.Budget == nil && u.Description == nil && u.Source == nil && u.Status == nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
