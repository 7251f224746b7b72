package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeutralDefaults_Apply(t *testing.T) {
	d := DefaultNeutralDefaults()

	t.Run("complete observation is untouched", func(t *testing.T) {
		obs := d.Apply(RawObservation{
			TemperatureC:    Float(-2),
			HumidityPct:     Float(80),
			WindSpeedMs:     Float(0),
			PrecipitationMm: Float(0),
			PM25:            Float(40),
		})

		assert.Equal(t, Measured(-2), obs.TemperatureC)
		assert.Equal(t, Measured(80), obs.HumidityPct)
		assert.Equal(t, Measured(0), obs.WindSpeedMs)
		assert.Equal(t, Measured(0), obs.PrecipitationMm)
		assert.Equal(t, 40.0, *obs.PM25)
		assert.Empty(t, obs.DefaultedFields())
	})

	t.Run("missing fields take neutral values", func(t *testing.T) {
		obs := d.Apply(RawObservation{})

		assert.Equal(t, Defaulted(10), obs.TemperatureC)
		assert.Equal(t, Defaulted(50), obs.HumidityPct)
		assert.Equal(t, Defaulted(2), obs.WindSpeedMs)
		assert.Equal(t, Defaulted(0), obs.PrecipitationMm)
		assert.Nil(t, obs.PM25)
		assert.Equal(t,
			[]string{FactorTemperature, FactorHumidity, FactorWind, FactorPrecipitation},
			obs.DefaultedFields())
	})

	t.Run("custom policy", func(t *testing.T) {
		custom := NeutralDefaults{TemperatureC: 15, HumidityPct: 60, WindSpeedMs: 1}
		obs := custom.Apply(RawObservation{HumidityPct: Float(45)})

		assert.Equal(t, Defaulted(15), obs.TemperatureC)
		assert.Equal(t, Measured(45), obs.HumidityPct)
		assert.Equal(t, Defaulted(1), obs.WindSpeedMs)
		assert.Equal(t, []string{FactorTemperature, FactorWind, FactorPrecipitation}, obs.DefaultedFields())
	})
}

func TestNeutralDefaults_AllMissingScoresMildly(t *testing.T) {
	result := Score(DefaultNeutralDefaults().Apply(RawObservation{}))

	// 40 + 20 + 15 + 15 + 8
	assert.Equal(t, 98, result.Score)
	assert.Equal(t, GradeGreat, result.Grade)
}

func TestMeasured_DistinguishesRealZero(t *testing.T) {
	assert.NotEqual(t, Measured(0), Defaulted(0))
	assert.False(t, Measured(0).Defaulted)
	assert.True(t, Defaulted(0).Defaulted)
}
