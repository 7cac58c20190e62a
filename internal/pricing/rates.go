package pricing

import (
	"math"

	"gardiens/internal/models"
)

// ResolveRates completes a partially specified pricing config.
//
// A missing hourly rate is derived from the daily one and vice versa. The
// nightly rate is never derived. When neither hourly nor daily is set both
// stay zero and the caller must treat the service as unpriced.
func ResolveRates(p models.PricingConfig, workdayHours float64) models.Rates {
	var rates models.Rates
	if p.Hourly != nil && *p.Hourly > 0 {
		rates.Hourly = *p.Hourly
	}
	if p.Daily != nil && *p.Daily > 0 {
		rates.Daily = *p.Daily
	}
	if p.Nightly != nil && *p.Nightly > 0 {
		rates.Nightly = *p.Nightly
	}

	if workdayHours <= 0 {
		return rates
	}

	switch {
	case rates.Hourly == 0 && rates.Daily > 0:
		rates.Hourly = roundAmount(float64(rates.Daily) / workdayHours)
	case rates.Daily == 0 && rates.Hourly > 0:
		rates.Daily = roundAmount(float64(rates.Hourly) * workdayHours)
	}

	return rates
}

// VariantRates resolves the rates a variant is billed with. A variant that
// carries only a flat price expressed per hour or per day has that price
// used as the matching rate. Nightly falls back to the service overnight price.
func VariantRates(svc models.ServiceConfig, variant models.ServiceVariant, workdayHours float64) models.Rates {
	p := variant.Pricing
	if p.Hourly == nil && p.Daily == nil && variant.Price > 0 {
		price := variant.Price
		switch variant.PriceUnit {
		case models.PriceUnitHour:
			p.Hourly = &price
		case models.PriceUnitDay:
			p.Daily = &price
		}
	}

	rates := ResolveRates(p, workdayHours)
	if rates.Nightly == 0 {
		rates.Nightly = svc.OvernightPrice
	}
	return rates
}

func roundAmount(v float64) int64 {
	return int64(math.Round(v))
}
