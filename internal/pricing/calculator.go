package pricing

import (
	"math"

	"gardiens/internal/models"
)

// Options tunes the calculator.
type Options struct {
	// WorkdayHours is the length of a billable full day.
	WorkdayHours float64
	// FullDayToleranceMinutes lets a leg slightly shorter than a workday
	// still be billed as a full day.
	FullDayToleranceMinutes int
}

func (o Options) workdayMinutes() float64 {
	h := o.WorkdayHours
	if h <= 0 {
		h = models.DefaultWorkdayHours
	}
	return h * 60
}

// CalculateSmartPrice produces the itemised price of a date-range booking.
//
// Precedence: fixed-duration formula, single day with times, single day
// without times, multi-day decomposition. Overnight nights are added to
// multi-day bookings that ask for them and options are always added flat.
// Every leg is rounded to the minor unit on its own.
func CalculateSmartPrice(
	req models.BookingRequest,
	svc models.ServiceConfig,
	variant models.ServiceVariant,
	rates models.Rates,
	optionsTotal int64,
	opts Options,
) models.PriceBreakdown {
	b := models.PriceBreakdown{
		HourlyRate:    rates.Hourly,
		DailyRate:     rates.Daily,
		NightlyRate:   rates.Nightly,
		OptionsAmount: optionsTotal,
	}

	if svc.EnableDurationBasedBlocking && variant.DurationMinutes() > 0 {
		b.FirstDayAmount = variant.Price
		b.FirstDayHours = roundHours(float64(variant.DurationMinutes()) / 60)
		b.TotalAmount = b.FirstDayAmount + b.OptionsAmount
		return b
	}

	c := legCalculator{rates: rates, fullDayMinutes: opts.workdayMinutes() - float64(opts.FullDayToleranceMinutes)}
	window := svc.WorkingWindow()
	totalDays := req.TotalDays()

	if totalDays <= 1 {
		if req.StartTime != nil && req.EndTime != nil {
			b.FirstDayAmount, b.FirstDayHours, b.FirstDayIsFullDay = c.leg(int(*req.EndTime - *req.StartTime))
		} else {
			b.FirstDayAmount = rates.Daily
			b.FirstDayHours = roundHours(opts.workdayMinutes() / 60)
			b.FirstDayIsFullDay = true
		}
		b.TotalAmount = b.FirstDayAmount + b.OptionsAmount
		return b
	}

	firstStart := window.Start
	if req.StartTime != nil {
		firstStart = *req.StartTime
	}
	lastEnd := window.End
	if req.EndTime != nil {
		lastEnd = *req.EndTime
	}

	b.FirstDayAmount, b.FirstDayHours, b.FirstDayIsFullDay = c.leg(int(window.End - firstStart))
	b.LastDayAmount, b.LastDayHours, b.LastDayIsFullDay = c.leg(int(lastEnd - window.Start))

	b.FullDays = totalDays - 2
	if b.FullDays < 0 {
		b.FullDays = 0
	}
	b.FullDaysAmount = int64(b.FullDays) * rates.Daily

	if req.IncludeOvernightStay {
		b.Nights = totalDays - 1
		b.NightsAmount = int64(b.Nights) * rates.Nightly
	}

	b.TotalAmount = b.FirstDayAmount + b.FullDaysAmount + b.LastDayAmount + b.NightsAmount + b.OptionsAmount
	return b
}

type legCalculator struct {
	rates          models.Rates
	fullDayMinutes float64
}

// leg prices one partial or full day. A leg reaching the workday length is a
// full day at the daily rate; shorter legs are billed hourly but never above
// the daily rate.
func (c legCalculator) leg(minutes int) (int64, float64, bool) {
	if minutes < 0 {
		minutes = 0
	}
	hours := roundHours(float64(minutes) / 60)

	if c.rates.Daily > 0 && minutes > 0 && float64(minutes) >= c.fullDayMinutes {
		return c.rates.Daily, hours, true
	}

	amount := roundAmount(float64(c.rates.Hourly) * float64(minutes) / 60)
	if c.rates.Daily > 0 && amount > c.rates.Daily {
		amount = c.rates.Daily
	}
	return amount, hours, false
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// DisplayTotal adds the platform commission to a pre-commission amount.
// It is for display only and never feeds back into the breakdown.
func DisplayTotal(amount int64, commissionPercent float64) int64 {
	if commissionPercent <= 0 {
		return amount
	}
	return roundAmount(float64(amount) * (1 + commissionPercent/100))
}
