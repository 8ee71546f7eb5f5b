package wizard_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/domain"
	"github.com/Travelintrips/travelpage-sub004/internal/wizard"
)

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	require.ErrorIs(t, err, apperr.ErrValidation)

	var verr *wizard.ValidationError
	require.True(t, errors.As(err, &verr))
	return verr.Fields
}

func TestPersonalInfoValidation(t *testing.T) {
	f := newFixture(t, smallBaggage())

	require.NoError(t, f.wizard.SetField(wizard.FieldName, "Al"))
	require.NoError(t, f.wizard.SetField(wizard.FieldEmail, "not-an-email"))
	require.NoError(t, f.wizard.SetField(wizard.FieldPhone, "12345"))

	fields := validationFields(t, f.wizard.Next())
	assert.Contains(t, fields, wizard.FieldName)
	assert.Contains(t, fields, wizard.FieldEmail)
	assert.Contains(t, fields, wizard.FieldPhone)
	assert.Equal(t, domain.StepPersonalInfo, f.wizard.Step())

	fillContact(t, f.wizard)
	require.NoError(t, f.wizard.Next())
	assert.Equal(t, domain.StepDurationSelection, f.wizard.Step())
}

func TestPersonalInfoVariantFields(t *testing.T) {
	tests := []struct {
		name    string
		variant wizard.Variant
		field   string
	}{
		{
			name:    "baggage description",
			variant: wizard.Variant{ItemType: domain.ItemTypeBaggage, Category: "electronic", UnitPrice: unitPrice, RequiresDescription: true},
			field:   wizard.FieldItemDescription,
		},
		{
			name:    "transfer pickup",
			variant: wizard.Variant{ItemType: domain.ItemTypeAirportTransfer, Category: "mpv", UnitPrice: unitPrice},
			field:   wizard.FieldPickupLocation,
		},
		{
			name:    "handling flight",
			variant: wizard.Variant{ItemType: domain.ItemTypeHandling, Category: "vip", UnitPrice: unitPrice},
			field:   wizard.FieldFlightNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.variant)
			fillContact(t, f.wizard)

			fields := validationFields(t, f.wizard.Next())
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestDurationValidation(t *testing.T) {
	tests := []struct {
		name  string
		mode  domain.DurationMode
		hours int
		date  string
		time  string
		end   string
		field string
	}{
		{name: "hours out of range", mode: domain.DurationHours, hours: 5, date: "2026-03-01", time: "13:00", field: "hours"},
		{name: "hours missing", mode: domain.DurationHours, date: "2026-03-01", time: "13:00", field: "hours"},
		{name: "today in the past", mode: domain.DurationHours, hours: 2, date: "2026-03-01", time: "08:00", field: "start_time"},
		{name: "today now", mode: domain.DurationHours, hours: 2, date: "2026-03-01", time: "09:00", field: "start_time"},
		{name: "yesterday", mode: domain.DurationHours, hours: 2, date: "2026-02-28", time: "13:00", field: "start_date"},
		{name: "missing time", mode: domain.DurationHours, hours: 2, date: "2026-03-02", field: "start_time"},
		{name: "days missing end", mode: domain.DurationDays, date: "2026-03-02", time: "10:00", field: "end_date"},
		{name: "days end before start", mode: domain.DurationDays, date: "2026-03-02", time: "10:00", end: "2026-03-02", field: "end_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, smallBaggage())
			fillContact(t, f.wizard)
			require.NoError(t, f.wizard.Next())

			require.NoError(t, f.wizard.SetDurationMode(tt.mode))
			require.NoError(t, f.wizard.SetHours(tt.hours))
			require.NoError(t, f.wizard.SetStart(tt.date, tt.time))
			require.NoError(t, f.wizard.SetEndDate(tt.end))

			fields := validationFields(t, f.wizard.Next())
			assert.Contains(t, fields, tt.field)
			assert.Equal(t, domain.StepDurationSelection, f.wizard.Step())
		})
	}
}

func TestDurationValidDays(t *testing.T) {
	f := newFixture(t, smallBaggage())
	fillContact(t, f.wizard)
	require.NoError(t, f.wizard.Next())

	require.NoError(t, f.wizard.SetDurationMode(domain.DurationDays))
	require.NoError(t, f.wizard.SetStart("2026-03-01", "10:00"))
	require.NoError(t, f.wizard.SetEndDate("2026-03-04"))
	require.NoError(t, f.wizard.Next())

	assert.Equal(t, domain.StepReview, f.wizard.Step())
	assert.True(t, f.wizard.Price().Equal(unitPrice.Mul(3)))
}
