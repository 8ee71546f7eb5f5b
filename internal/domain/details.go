package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Details is the per-item-type payload stored opaquely on a CartItem.
type Details interface {
	ItemType() ItemType
	Validate() error
}

type Contact struct {
	CustomerName string `json:"customer_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

func (c Contact) validate() error {
	var errs []error
	if c.CustomerName == "" {
		errs = append(errs, errors.New("customer name is empty"))
	}
	if c.Email == "" {
		errs = append(errs, errors.New("email is empty"))
	}
	if c.Phone == "" {
		errs = append(errs, errors.New("phone is empty"))
	}
	return errors.Join(errs...)
}

type Schedule struct {
	DurationMode DurationMode `json:"duration_mode"`
	Hours        int          `json:"hours,omitempty"`
	StartDate    string       `json:"start_date"`
	StartTime    string       `json:"start_time"`
	EndDate      string       `json:"end_date,omitempty"`
}

func (s Schedule) validate() error {
	switch s.DurationMode {
	case DurationHours:
		if s.Hours < 1 {
			return errors.New("hours not set")
		}
	case DurationDays:
		if s.EndDate == "" {
			return errors.New("end date is empty")
		}
	default:
		return fmt.Errorf("duration mode[%s] is not valid", s.DurationMode)
	}
	if s.StartDate == "" || s.StartTime == "" {
		return errors.New("start date or time is empty")
	}
	return nil
}

type BaggageDetails struct {
	BookingCode string `json:"booking_code"`
	Contact
	Schedule
	Category        string `json:"category"`
	FlightNumber    string `json:"flight_number,omitempty"`
	ItemDescription string `json:"item_description,omitempty"`
}

func (BaggageDetails) ItemType() ItemType { return ItemTypeBaggage }

func (d BaggageDetails) Validate() error {
	var errs []error
	if d.BookingCode == "" {
		errs = append(errs, errors.New("booking code is empty"))
	}
	if d.Category == "" {
		errs = append(errs, errors.New("category is empty"))
	}
	errs = append(errs, d.Contact.validate(), d.Schedule.validate())
	return errors.Join(errs...)
}

type TransferDetails struct {
	BookingCode string `json:"booking_code"`
	Contact
	Schedule
	VehicleCategory string `json:"vehicle_category"`
	PickupLocation  string `json:"pickup_location"`
	DropoffLocation string `json:"dropoff_location"`
}

func (TransferDetails) ItemType() ItemType { return ItemTypeAirportTransfer }

func (d TransferDetails) Validate() error {
	var errs []error
	if d.BookingCode == "" {
		errs = append(errs, errors.New("booking code is empty"))
	}
	if d.PickupLocation == "" || d.DropoffLocation == "" {
		errs = append(errs, errors.New("pickup or dropoff location is empty"))
	}
	errs = append(errs, d.Contact.validate(), d.Schedule.validate())
	return errors.Join(errs...)
}

type HandlingDetails struct {
	BookingCode string `json:"booking_code"`
	Contact
	Schedule
	Category     string `json:"category"`
	FlightNumber string `json:"flight_number"`
}

func (HandlingDetails) ItemType() ItemType { return ItemTypeHandling }

func (d HandlingDetails) Validate() error {
	var errs []error
	if d.BookingCode == "" {
		errs = append(errs, errors.New("booking code is empty"))
	}
	if d.FlightNumber == "" {
		errs = append(errs, errors.New("flight number is empty"))
	}
	errs = append(errs, d.Contact.validate(), d.Schedule.validate())
	return errors.Join(errs...)
}

type CarDetails struct {
	BookingCode string `json:"booking_code"`
	Contact
	Schedule
	Model string `json:"model"`
}

func (CarDetails) ItemType() ItemType { return ItemTypeCar }

func (d CarDetails) Validate() error {
	var errs []error
	if d.BookingCode == "" {
		errs = append(errs, errors.New("booking code is empty"))
	}
	if d.Model == "" {
		errs = append(errs, errors.New("model is empty"))
	}
	errs = append(errs, d.Contact.validate(), d.Schedule.validate())
	return errors.Join(errs...)
}

type detailsEnvelope struct {
	Type ItemType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeDetails validates d and wraps it in a type-tagged JSON document.
func EncodeDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, errors.New("details is nil")
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("d.Validate: %w", err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return json.Marshal(detailsEnvelope{Type: d.ItemType(), Data: data})
}

// DecodeDetails is the inverse of EncodeDetails, used by display code.
func DecodeDetails(raw []byte) (Details, error) {
	var envelope detailsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	var d Details
	switch envelope.Type {
	case ItemTypeBaggage:
		d = &BaggageDetails{}
	case ItemTypeAirportTransfer:
		d = &TransferDetails{}
	case ItemTypeHandling:
		d = &HandlingDetails{}
	case ItemTypeCar:
		d = &CarDetails{}
	default:
		return nil, fmt.Errorf("details type[%s] is not valid", envelope.Type)
	}

	if err := json.Unmarshal(envelope.Data, d); err != nil {
		return nil, fmt.Errorf("json.Unmarshal[%s]: %w", envelope.Type, err)
	}

	return d, nil
}
