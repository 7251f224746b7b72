package domain

// Measurement is a weather value that was either reported by the provider or
// filled in from a neutral default. Keeping the flag stops a missing reading
// from looking like a real zero.
type Measurement struct {
	Value     float64 `json:"value"`
	Defaulted bool    `json:"defaulted,omitempty"`
}

// Measured wraps a provider-reported value.
func Measured(v float64) Measurement {
	return Measurement{Value: v}
}

// Defaulted wraps a substituted neutral value.
func Defaulted(v float64) Measurement {
	return Measurement{Value: v, Defaulted: true}
}

// RawObservation holds the fields parsed from a provider response. A nil
// field was absent or unparseable.
type RawObservation struct {
	TemperatureC    *float64 `json:"tempC"`
	HumidityPct     *float64 `json:"humidityPct"`
	WindSpeedMs     *float64 `json:"windMs"`
	PrecipitationMm *float64 `json:"precipMm"`
	PM25            *float64 `json:"pm25,omitempty"`
}

// Observation is the normalized input to Score. PM25 stays optional because
// the scorer gives absent particulate data its own neutral band.
type Observation struct {
	TemperatureC    Measurement `json:"tempC"`
	HumidityPct     Measurement `json:"humidityPct"`
	WindSpeedMs     Measurement `json:"windMs"`
	PrecipitationMm Measurement `json:"precipMm"`
	PM25            *float64    `json:"pm25"`
}

// NeutralDefaults is the single policy for filling absent readings before
// scoring. Absent precipitation is always 0.
type NeutralDefaults struct {
	TemperatureC float64 `json:"tempC"`
	HumidityPct  float64 `json:"humidityPct"`
	WindSpeedMs  float64 `json:"windMs"`
}

// DefaultNeutralDefaults returns mild running weather: 10°C, 50 %, 2 m/s.
func DefaultNeutralDefaults() NeutralDefaults {
	return NeutralDefaults{
		TemperatureC: 10,
		HumidityPct:  50,
		WindSpeedMs:  2,
	}
}

// Apply resolves a raw observation into a scorable one.
func (d NeutralDefaults) Apply(raw RawObservation) Observation {
	return Observation{
		TemperatureC:    measureOr(raw.TemperatureC, d.TemperatureC),
		HumidityPct:     measureOr(raw.HumidityPct, d.HumidityPct),
		WindSpeedMs:     measureOr(raw.WindSpeedMs, d.WindSpeedMs),
		PrecipitationMm: measureOr(raw.PrecipitationMm, 0),
		PM25:            raw.PM25,
	}
}

// DefaultedFields lists the JSON names of fields that were filled in.
func (o Observation) DefaultedFields() []string {
	fields := []string{}
	if o.TemperatureC.Defaulted {
		fields = append(fields, FactorTemperature)
	}
	if o.HumidityPct.Defaulted {
		fields = append(fields, FactorHumidity)
	}
	if o.WindSpeedMs.Defaulted {
		fields = append(fields, FactorWind)
	}
	if o.PrecipitationMm.Defaulted {
		fields = append(fields, FactorPrecipitation)
	}
	return fields
}

func measureOr(v *float64, def float64) Measurement {
	if v == nil {
		return Defaulted(def)
	}
	return Measured(*v)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
