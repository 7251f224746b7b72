package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPointName = "seoul"

func TestNewSnapshot(t *testing.T) {
	fixed := time.Date(2026, 1, 15, 9, 5, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	point := PollPoint{Name: testPointName, Lat: 37.5665, Lon: 126.978}
	cell := ProjectPoint(GeoPoint{Lat: point.Lat, Lon: point.Lon})
	base := Base{Date: "20260115", Time: "1800"}
	obs := DefaultNeutralDefaults().Apply(RawObservation{
		TemperatureC: Float(6.5),
		HumidityPct:  Float(52),
		WindSpeedMs:  Float(2.8),
	})

	s := NewSnapshot(point, cell, base, obs)

	assert.Len(t, s.ID, 16)
	assert.Equal(t, testPointName, s.Name)
	assert.Equal(t, 60, s.NX)
	assert.Equal(t, 127, s.NY)
	assert.Equal(t, base, s.Base)
	assert.Equal(t, fixed, s.ProcessedAt)
	assert.Equal(t, []string{FactorPrecipitation}, s.Defaulted)
	assert.Equal(t, 90, s.Result.Score)
	assert.Equal(t, GradeGreat, s.Result.Grade)
}

func TestSnapshotID_Deterministic(t *testing.T) {
	cell := GridCell{NX: 60, NY: 127}
	base := Base{Date: "20260115", Time: "1800"}

	a := snapshotID(testPointName, cell, base)
	b := snapshotID(testPointName, cell, base)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, snapshotID("busan", cell, base))
	assert.NotEqual(t, a, snapshotID(testPointName, GridCell{NX: 61, NY: 127}, base))
	assert.NotEqual(t, a, snapshotID(testPointName, cell, PreviousBase(base)))
}

func TestSerializeSnapshot(t *testing.T) {
	s := Snapshot{
		ID:          "abc123",
		Name:        testPointName,
		NX:          60,
		NY:          127,
		Base:        Base{Date: "20260115", Time: "1800"},
		Observation: DefaultNeutralDefaults().Apply(RawObservation{}),
		Result:      SuitabilityResult{Score: 72, Grade: GradeGood, Advice: []string{}},
		ProcessedAt: time.Date(2026, 1, 15, 9, 5, 0, 0, time.UTC),
	}

	out, err := SerializeSnapshot(s)
	require.NoError(t, err)

	assert.Equal(t, []byte("abc123"), out.Key)
	assert.Equal(t, "GOOD", out.Headers["grade"])
	assert.Equal(t, "2026-01-15T09:05:00Z", out.Headers["processed_at"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	assert.Equal(t, "abc123", decoded["id"])
	assert.Equal(t, float64(60), decoded["nx"])
	base := decoded["base"].(map[string]any)
	assert.Equal(t, "1800", base["base_time"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "GOOD", result["grade"])
}
