package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// KST is Korea Standard Time. Korea observes no daylight saving.
var KST = time.FixedZone("KST", 9*60*60)

// Product identifies one of the two ultra short-term KMA operations.
type Product string

const (
	ProductNowcast  Product = "ultra-ncst"
	ProductForecast Product = "ultra-fcst"
)

// Operation returns the provider operation name for the product.
func (p Product) Operation() string {
	switch p {
	case ProductNowcast:
		return "getUltraSrtNcst"
	case ProductForecast:
		return "getUltraSrtFcst"
	default:
		return ""
	}
}

// baseMinute is the minute component of each product's issue time.
func (p Product) baseMinute() string {
	if p == ProductForecast {
		return "30"
	}
	return "00"
}

// KMA item categories.
const (
	CategoryTemperature       = "T1H"
	CategoryTemperatureFcst   = "TMP"
	CategoryHumidity          = "REH"
	CategoryWindSpeed         = "WSD"
	CategoryPrecipitation     = "RN1"
	CategoryPrecipitationFcst = "PCP"
	CategoryPrecipProbability = "POP"
)

const (
	baseDateLayout = "20060102"
	fcstLayout     = "200601021504"
)

// Base is the base_date/base_time pair identifying a KMA batch.
type Base struct {
	Date string `json:"base_date"`
	Time string `json:"base_time"`
}

func (b Base) String() string {
	return b.Date + b.Time
}

// Instant is the KST time the base names, or the zero time if it is invalid.
func (b Base) Instant() time.Time {
	at, err := time.ParseInLocation(fcstLayout, b.Date+b.Time, KST)
	if err != nil {
		return time.Time{}
	}
	return at
}

// BaseAt returns the batch of product p covering instant t: the current KST
// hour at HH00 for nowcasts and HH30 for forecasts.
func BaseAt(p Product, t time.Time) Base {
	kst := t.In(KST)
	return Base{
		Date: kst.Format(baseDateLayout),
		Time: kst.Format("15") + p.baseMinute(),
	}
}

// CurrentBase is BaseAt for the package clock.
func CurrentBase(p Product) Base {
	return BaseAt(p, clock.Now())
}

// PreviousBase returns the batch issued one hour before b. It crosses
// midnight and month boundaries. An unparseable base is returned unchanged.
func PreviousBase(b Base) Base {
	at := b.Instant()
	if at.IsZero() {
		return b
	}
	prev := at.Add(-time.Hour)
	return Base{
		Date: prev.Format(baseDateLayout),
		Time: prev.Format("1504"),
	}
}

// ItemValue is a provider value. KMA normally sends strings but numeric
// values have been seen, so both decode to the same text form.
type ItemValue string

// UnmarshalJSON accepts a JSON string, number or null.
func (v *ItemValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ItemValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item value %s: %w", data, err)
	}
	*v = ItemValue(n.String())
	return nil
}

// Item is one row of body.items.item in a KMA response.
type Item struct {
	BaseDate  string    `json:"baseDate"`
	BaseTime  string    `json:"baseTime"`
	Category  string    `json:"category"`
	NX        int       `json:"nx"`
	NY        int       `json:"ny"`
	ObsrValue ItemValue `json:"obsrValue,omitempty"`
	FcstDate  string    `json:"fcstDate,omitempty"`
	FcstTime  string    `json:"fcstTime,omitempty"`
	FcstValue ItemValue `json:"fcstValue,omitempty"`
}

// ParseIssue records a value that could not be decoded.
type ParseIssue struct {
	Category string
	Raw      string
}

// ForecastHour is the forecast for one fcstDate/fcstTime slot.
type ForecastHour struct {
	At       time.Time `json:"at"`
	FcstDate string    `json:"fcstDate"`
	FcstTime string    `json:"fcstTime"`
	RawObservation
	PopPct *float64 `json:"popPct"`
}

// ParseNowcastItems maps nowcast items onto a RawObservation. Later items
// for the same category win. Unknown categories are ignored.
func ParseNowcastItems(items []Item) (RawObservation, []ParseIssue) {
	var (
		obs    RawObservation
		issues []ParseIssue
	)
	for _, it := range items {
		v := string(it.ObsrValue)
		switch it.Category {
		case CategoryTemperature:
			obs.TemperatureC = parseNumber(v)
		case CategoryHumidity:
			obs.HumidityPct = parseNumber(v)
		case CategoryWindSpeed:
			obs.WindSpeedMs = parseNumber(v)
		case CategoryPrecipitation:
			obs.PrecipitationMm = parsePrecip(it.Category, v, &issues)
		}
	}
	return obs, issues
}

// ParseForecastItems groups forecast items by fcstDate+fcstTime and returns
// the hours in ascending order. Items without a date or time are dropped.
func ParseForecastItems(items []Item) ([]ForecastHour, []ParseIssue) {
	var issues []ParseIssue
	byKey := make(map[string]*ForecastHour)

	for _, it := range items {
		date := strings.TrimSpace(it.FcstDate)
		hhmm := strings.TrimSpace(it.FcstTime)
		if date == "" || hhmm == "" {
			continue
		}

		key := date + hhmm
		h, ok := byKey[key]
		if !ok {
			h = &ForecastHour{FcstDate: date, FcstTime: hhmm, At: forecastInstant(date, hhmm)}
			byKey[key] = h
		}

		v := string(it.FcstValue)
		switch it.Category {
		case CategoryTemperature, CategoryTemperatureFcst:
			h.TemperatureC = parseNumber(v)
		case CategoryHumidity:
			h.HumidityPct = parseNumber(v)
		case CategoryWindSpeed:
			h.WindSpeedMs = parseNumber(v)
		case CategoryPrecipProbability:
			h.PopPct = parseNumber(v)
		case CategoryPrecipitation, CategoryPrecipitationFcst:
			h.PrecipitationMm = parsePrecip(it.Category, v, &issues)
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hours := make([]ForecastHour, 0, len(keys))
	for _, k := range keys {
		hours = append(hours, *byKey[k])
	}
	return hours, issues
}

// forecastInstant interprets fcstDate/fcstTime as KST. An invalid slot gives
// the zero time.
func forecastInstant(date, hhmm string) time.Time {
	at, err := time.ParseInLocation(fcstLayout, date+hhmm, KST)
	if err != nil {
		return time.Time{}
	}
	return at
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parsePrecip(category, raw string, issues *[]ParseIssue) *float64 {
	p := ParsePrecipitation(raw)
	if p.Kind == PrecipUnparseable {
		*issues = append(*issues, ParseIssue{Category: category, Raw: raw})
	}
	return p.Pointer()
}
