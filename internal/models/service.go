package models

// Price units a variant can be quoted in.
const (
	PriceUnitHour  = "hour"
	PriceUnitDay   = "day"
	PriceUnitWeek  = "week"
	PriceUnitMonth = "month"
	PriceUnitFlat  = "flat"
)

// Session types for multi-occurrence formulas.
const (
	SessionTypeIndividual = "individual"
	SessionTypeCollective = "collective"
)

// PricingConfig holds the rates an announcer typed in. Any of them may be
// missing; amounts are in minor currency units.
type PricingConfig struct {
	Hourly  *int64 `json:"hourly,omitempty" yaml:"hourly,omitempty" toml:"hourly,omitempty"`
	Daily   *int64 `json:"daily,omitempty" yaml:"daily,omitempty" toml:"daily,omitempty"`
	Weekly  *int64 `json:"weekly,omitempty" yaml:"weekly,omitempty" toml:"weekly,omitempty"`
	Monthly *int64 `json:"monthly,omitempty" yaml:"monthly,omitempty" toml:"monthly,omitempty"`
	Nightly *int64 `json:"nightly,omitempty" yaml:"nightly,omitempty" toml:"nightly,omitempty"`
}

// Rates is the fully resolved rate triple used by every price computation.
type Rates struct {
	Hourly  int64 `json:"hourly"`
	Daily   int64 `json:"daily"`
	Nightly int64 `json:"nightly"`
}

// Priced reports whether at least one of the hourly or daily rates is known.
func (r Rates) Priced() bool {
	return r.Hourly > 0 || r.Daily > 0
}

type ServiceVariant struct {
	ID                   int64         `json:"id" yaml:"id"`
	ServiceID            int64         `json:"service_id" yaml:"-"`
	Name                 string        `json:"name" yaml:"name"`
	Duration             *int          `json:"duration,omitempty" yaml:"duration,omitempty"`
	Price                int64         `json:"price" yaml:"price"`
	Pricing              PricingConfig `json:"pricing" yaml:"pricing"`
	PriceUnit            string        `json:"price_unit" yaml:"price_unit"`
	NumberOfSessions     int           `json:"number_of_sessions" yaml:"number_of_sessions"`
	SessionInterval      int           `json:"session_interval" yaml:"session_interval"`
	SessionType          string        `json:"session_type" yaml:"session_type"`
	MaxAnimalsPerSession int           `json:"max_animals_per_session" yaml:"max_animals_per_session"`
	IncludedFeatures     []string      `json:"included_features" yaml:"included_features"`
}

// Sessions returns NumberOfSessions with the implicit minimum of one.
func (v ServiceVariant) Sessions() int {
	if v.NumberOfSessions < 1 {
		return 1
	}
	return v.NumberOfSessions
}

func (v ServiceVariant) IsCollective() bool {
	return v.SessionType == SessionTypeCollective
}

// IsMultiUnit reports whether the variant is booked as several occurrences
// rather than as one date range.
func (v ServiceVariant) IsMultiUnit() bool {
	return v.IsCollective() || v.Sessions() > 1
}

// DurationMinutes returns the fixed duration or 0 when the variant has none.
func (v ServiceVariant) DurationMinutes() int {
	if v.Duration == nil {
		return 0
	}
	return *v.Duration
}

type ServiceOption struct {
	ID        int64  `json:"id" yaml:"id"`
	ServiceID int64  `json:"service_id" yaml:"-"`
	Name      string `json:"name" yaml:"name"`
	Price     int64  `json:"price" yaml:"price"`
}

type ServiceConfig struct {
	ID                          int64            `json:"id" yaml:"id"`
	AnnouncerID                 int64            `json:"announcer_id" yaml:"announcer_id"`
	Name                        string           `json:"name" yaml:"name"`
	Category                    string           `json:"category" yaml:"category"`
	DayStartTime                ClockTime        `json:"day_start_time" yaml:"day_start_time"`
	DayEndTime                  ClockTime        `json:"day_end_time" yaml:"day_end_time"`
	AllowOvernightStay          bool             `json:"allow_overnight_stay" yaml:"allow_overnight_stay"`
	OvernightPrice              int64            `json:"overnight_price" yaml:"overnight_price"`
	EnableDurationBasedBlocking bool             `json:"enable_duration_based_blocking" yaml:"enable_duration_based_blocking"`
	IsCapacityBased             bool             `json:"is_capacity_based" yaml:"is_capacity_based"`
	MaxAnimalsPerSlot           int              `json:"max_animals_per_slot" yaml:"max_animals_per_slot"`
	BufferBefore                int              `json:"buffer_before" yaml:"buffer_before"`
	BufferAfter                 int              `json:"buffer_after" yaml:"buffer_after"`
	Variants                    []ServiceVariant `json:"variants" yaml:"variants"`
	Options                     []ServiceOption  `json:"options" yaml:"options"`
}

// WorkingWindow returns the announcer's bookable window for one day.
// An unset or inverted end time means the window runs to midnight.
func (s ServiceConfig) WorkingWindow() TimeSlot {
	end := s.DayEndTime
	if end <= s.DayStartTime {
		end = MinutesPerDay
	}
	return TimeSlot{Start: s.DayStartTime, End: end}
}

func (s ServiceConfig) Variant(id int64) (ServiceVariant, bool) {
	for _, v := range s.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return ServiceVariant{}, false
}

// OptionsTotal sums the prices of the selected options. Unknown ids are
// reported back so callers can reject the request.
func (s ServiceConfig) OptionsTotal(ids []int64) (int64, []int64) {
	byID := make(map[int64]int64, len(s.Options))
	for _, o := range s.Options {
		byID[o.ID] = o.Price
	}

	var total int64
	var unknown []int64
	for _, id := range ids {
		price, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		total += price
	}
	return total, unknown
}

// CollectiveSlot is a shared session published by the announcer.
type CollectiveSlot struct {
	ID             int64     `json:"id"`
	VariantID      int64     `json:"variant_id"`
	Date           Date      `json:"date"`
	StartTime      ClockTime `json:"start_time"`
	EndTime        ClockTime `json:"end_time"`
	TotalSpots     int       `json:"total_spots"`
	AvailableSpots int       `json:"available_spots"`
}
