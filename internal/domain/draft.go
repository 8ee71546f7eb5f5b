package domain

import "time"

type Step int

const (
	StepPersonalInfo Step = iota + 1
	StepDurationSelection
	StepReview
	// StepSubmitted is terminal. A draft recorded at this step denotes a
	// completed order.
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepPersonalInfo:
		return "personal_info"
	case StepDurationSelection:
		return "duration_selection"
	case StepReview:
		return "review"
	case StepSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

type DurationMode string

const (
	DurationHours DurationMode = "hours"
	DurationDays  DurationMode = "days"
)

// BookingDraft is the serialized in-progress state of a booking form. It is
// always written whole.
type BookingDraft struct {
	Step         Step              `cbor:"step"`
	DurationMode DurationMode      `cbor:"duration_mode"`
	Hours        int               `cbor:"hours"`
	StartDate    string            `cbor:"start_date"`
	StartTime    string            `cbor:"start_time"`
	EndDate      string            `cbor:"end_date"`
	Fields       map[string]string `cbor:"fields"`
	Category     string            `cbor:"category"`
	Timestamp    time.Time         `cbor:"timestamp"`
	Submitting   bool              `cbor:"submitting"`
}

func (d BookingDraft) Clone() BookingDraft {
	out := d
	if d.Fields != nil {
		out.Fields = make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
