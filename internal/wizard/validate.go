package wizard

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

// Form field names.
const (
	FieldName            = "name"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldItemDescription = "item_description"
	FieldFlightNumber    = "flight_number"
	FieldPickupLocation  = "pickup_location"
	FieldDropoffLocation = "dropoff_location"
)

// ValidationError lists the offending fields of one step.
type ValidationError struct {
	Step   domain.Step
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("step[%s] invalid: %s", e.Step, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return apperr.ErrValidation }

type contactForm struct {
	Name  string `validate:"required,min=3"`
	Email string `validate:"required,email"`
	Phone string `validate:"required,numeric,min=8,max=15"`
}

var contactFields = map[string]string{
	"Name":  FieldName,
	"Email": FieldEmail,
	"Phone": FieldPhone,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// normalizePhone drops the separators people type between digits.
func normalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "").Replace(phone)
}

func validatePersonalInfo(v Variant, fields map[string]string) error {
	problems := make(map[string]string)

	form := contactForm{
		Name:  strings.TrimSpace(fields[FieldName]),
		Email: strings.TrimSpace(fields[FieldEmail]),
		Phone: normalizePhone(fields[FieldPhone]),
	}
	if err := validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate.Struct: %w", err)
		}
		for _, fe := range fieldErrs {
			problems[contactFields[fe.Field()]] = describe(fe.Tag(), fe.Param())
		}
	}

	required := func(field, tag string) {
		if err := validate.Var(strings.TrimSpace(fields[field]), tag); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				problems[field] = describe(fieldErrs[0].Tag(), fieldErrs[0].Param())
			}
		}
	}

	switch v.ItemType {
	case domain.ItemTypeBaggage:
		if v.RequiresDescription {
			required(FieldItemDescription, "required,min=3")
		}
	case domain.ItemTypeAirportTransfer:
		required(FieldPickupLocation, "required")
		required(FieldDropoffLocation, "required")
	case domain.ItemTypeHandling:
		required(FieldFlightNumber, "required")
	}

	if len(problems) > 0 {
		return &ValidationError{Step: domain.StepPersonalInfo, Fields: problems}
	}
	return nil
}

type schedule struct {
	Mode      domain.DurationMode
	Hours     int
	StartDate string
	StartTime string
	EndDate   string
}

// validateDuration checks the schedule against now. A start on today's date
// must be strictly in the future.
func validateDuration(s schedule, now time.Time) error {
	problems := make(map[string]string)
	loc := now.Location()

	switch s.Mode {
	case domain.DurationHours:
		if s.Hours < 1 || s.Hours > HoursPerBlock {
			problems["hours"] = fmt.Sprintf("must be between 1 and %d", HoursPerBlock)
		}
	case domain.DurationDays:
	default:
		problems["duration_mode"] = "must be hours or days"
	}

	start, startErr := time.ParseInLocation(dateLayout+" 15:04", s.StartDate+" "+s.StartTime, loc)
	switch {
	case s.StartDate == "":
		problems["start_date"] = "is required"
	case s.StartTime == "":
		problems["start_time"] = "is required"
	case startErr != nil:
		problems["start_date"] = "is not a valid date and time"
	default:
		today := now.Format(dateLayout)
		switch {
		case s.StartDate < today:
			problems["start_date"] = "is in the past"
		case s.StartDate == today && !start.After(now):
			problems["start_time"] = "must be later than now"
		}
	}

	if s.Mode == domain.DurationDays {
		days, ok := daysBetween(s.StartDate, s.EndDate)
		switch {
		case s.EndDate == "":
			problems["end_date"] = "is required"
		case !ok:
			problems["end_date"] = "is not a valid date"
		case days <= 0:
			problems["end_date"] = "must be after start date"
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Step: domain.StepDurationSelection, Fields: problems}
	}
	return nil
}

func describe(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "email":
		return "is not a valid email"
	case "numeric":
		return "must contain digits only"
	default:
		return "is not valid"
	}
}
