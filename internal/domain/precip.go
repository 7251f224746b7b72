package domain

import (
	"strconv"
	"strings"
)

// PrecipKind classifies how a provider precipitation value was encoded.
type PrecipKind string

const (
	PrecipAmount      PrecipKind = "amount"
	PrecipNone        PrecipKind = "none"
	PrecipTrace       PrecipKind = "trace"
	PrecipMissing     PrecipKind = "missing"
	PrecipUnparseable PrecipKind = "unparseable"
)

const (
	precipNoneText  = "강수없음"
	precipUnderText = "미만"
)

// Precipitation is a parsed precipitation value in millimetres.
type Precipitation struct {
	Mm   float64
	Kind PrecipKind
	Raw  string
}

// Known reports whether the value carries a usable amount.
func (p Precipitation) Known() bool {
	switch p.Kind {
	case PrecipAmount, PrecipNone, PrecipTrace:
		return true
	default:
		return false
	}
}

// Pointer returns the amount, or nil when the value is missing or unparseable.
func (p Precipitation) Pointer() *float64 {
	if !p.Known() {
		return nil
	}
	return Float(p.Mm)
}

// ParsePrecipitation decodes a KMA precipitation string. "강수없음" is 0 mm
// and any "... 미만" (under) value is a trace, also 0 mm. Otherwise every
// character other than digits and '.' is dropped and the rest parsed, so
// "1.5mm" and "50.0mm 이상" keep their number.
func ParsePrecipitation(raw string) Precipitation {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return Precipitation{Kind: PrecipMissing, Raw: raw}
	case strings.Contains(s, precipNoneText):
		return Precipitation{Kind: PrecipNone, Raw: raw}
	case strings.Contains(s, precipUnderText):
		return Precipitation{Kind: PrecipTrace, Raw: raw}
	}

	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)

	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return Precipitation{Kind: PrecipUnparseable, Raw: raw}
	}
	return Precipitation{Mm: v, Kind: PrecipAmount, Raw: raw}
}
