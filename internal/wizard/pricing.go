package wizard

import (
	"math"
	"time"

	"github.com/Travelintrips/travelpage-sub004/internal/domain"
)

// HoursPerBlock is the billing block of hours mode.
const HoursPerBlock = 4

const dateLayout = "2006-01-02"

// Price is unitPrice times the number of billed units: 4-hour blocks in hours
// mode, calendar days in days mode. Incomplete input prices at zero.
func Price(unitPrice domain.Money, mode domain.DurationMode, hours int, startDate, endDate string) domain.Money {
	return unitPrice.Mul(billedUnits(mode, hours, startDate, endDate))
}

func billedUnits(mode domain.DurationMode, hours int, startDate, endDate string) int64 {
	switch mode {
	case domain.DurationHours:
		if hours < 1 {
			return 0
		}
		return int64(math.Ceil(float64(hours) / HoursPerBlock))

	case domain.DurationDays:
		days, ok := daysBetween(startDate, endDate)
		if !ok || days <= 0 {
			return 0
		}
		return int64(math.Ceil(days))

	default:
		return 0
	}
}

// daysBetween parses both dates as UTC so DST shifts never produce
// fractional days.
func daysBetween(startDate, endDate string) (float64, bool) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return 0, false
	}
	return end.Sub(start).Hours() / 24, true
}
