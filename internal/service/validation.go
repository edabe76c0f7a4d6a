package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/pricing"
)

// StartInput is the payload of POST /reservations.  Amounts are never
// accepted from callers; they are derived from the participant count.
type StartInput struct {
	Guardian     model.Guardian      `json:"guardian" validate:"required"`
	Participants []model.Participant `json:"participants" validate:"min=1,max=3,dive"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalize trims every free text field so blank values fail "required".
func (in *StartInput) normalize() {
	in.Guardian.Name = strings.TrimSpace(in.Guardian.Name)
	in.Guardian.Phone = strings.TrimSpace(in.Guardian.Phone)
	in.Guardian.Email = strings.TrimSpace(in.Guardian.Email)
	for i := range in.Participants {
		p := &in.Participants[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Age = strings.TrimSpace(p.Age)
		p.Notes = strings.TrimSpace(p.Notes)
	}
}

// check validates in and converts the first failure into a *Error naming
// the offending field, e.g. "participants[1].age".
func (s *ReservationService) check(in *StartInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", "invalid request")
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "min", "max":
		return invalid(field, "between 1 and %d participants are required", pricing.MaxParticipants)
	default:
		return invalid(field, "%s is required", field)
	}
}
