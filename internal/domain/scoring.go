package domain

// Grade is the qualitative band of a running index score.
type Grade string

const (
	GradeGreat Grade = "GREAT"
	GradeGood  Grade = "GOOD"
	GradeOK    Grade = "OK"
	GradeBad   Grade = "BAD"
	GradeAwful Grade = "AWFUL"
)

// Grades lists every grade from best to worst.
var Grades = []Grade{GradeGreat, GradeGood, GradeOK, GradeBad, GradeAwful}

// Factor names used as keys of SuitabilityResult.Factors.
const (
	FactorTemperature   = "tempC"
	FactorHumidity      = "humidityPct"
	FactorWind          = "windMs"
	FactorPrecipitation = "precipMm"
	FactorPM25          = "pm25"
)

// Advisory messages, in the order they are emitted.
const (
	AdvisoryPrecipitation = "강수 주의"
	AdvisoryStrongWind    = "바람 강함"
	AdvisoryCold          = "노면 결빙/보온 주의"
	AdvisoryHeat          = "열 스트레스 주의"
	AdvisoryAirQuality    = "공기질 나쁨(실내 고려)"
)

const (
	minScore = 0
	maxScore = 100

	// neutralPM25Score is given when no particulate reading exists.
	neutralPM25Score = 8
)

var gradeSummaries = map[Grade]string{
	GradeGreat: "러닝 최적 조건입니다. 템포/인터벌도 무난합니다.",
	GradeGood:  "데일리 조깅/LSD에 좋습니다.",
	GradeOK:    "가볍게 뛰기엔 무난하지만 강훈련은 비추입니다.",
	GradeBad:   "야외 러닝은 부담될 수 있습니다. 강도 낮추거나 실내 권장입니다.",
	GradeAwful: "야외 러닝 비권장입니다. 컨디션/체온/호흡기 리스크가 큽니다.",
}

// FactorScore is the contribution of one weather dimension.
type FactorScore struct {
	Value *float64 `json:"value"`
	Score int      `json:"score"`
}

// SuitabilityResult is the scored running index for one observation.
type SuitabilityResult struct {
	Score   int                    `json:"score"`
	Grade   Grade                  `json:"grade"`
	Summary string                 `json:"summary"`
	Advice  []string               `json:"advice"`
	Factors map[string]FactorScore `json:"factors"`
}

// Score computes the running index. It is pure and safe for concurrent use.
func Score(obs Observation) SuitabilityResult {
	t := ScoreTemperature(obs.TemperatureC.Value)
	h := ScoreHumidity(obs.HumidityPct.Value)
	w := ScoreWind(obs.WindSpeedMs.Value)
	p := ScorePrecipitation(obs.PrecipitationMm.Value)
	a := ScorePM25(obs.PM25)

	total := clamp(t+h+w+p+a, minScore, maxScore)
	grade := GradeFor(total)

	return SuitabilityResult{
		Score:   total,
		Grade:   grade,
		Summary: SummaryFor(grade),
		Advice:  advise(obs),
		Factors: map[string]FactorScore{
			FactorTemperature:   {Value: Float(obs.TemperatureC.Value), Score: t},
			FactorHumidity:      {Value: Float(obs.HumidityPct.Value), Score: h},
			FactorWind:          {Value: Float(obs.WindSpeedMs.Value), Score: w},
			FactorPrecipitation: {Value: Float(obs.PrecipitationMm.Value), Score: p},
			FactorPM25:          {Value: copyFloat(obs.PM25), Score: a},
		},
	}
}

// ScoreTemperature scores air temperature in °C, 40 points max. Best band is 10–15°C.
func ScoreTemperature(c float64) int {
	switch {
	case c >= 10 && c <= 15:
		return 40
	case (c >= 5 && c < 10) || (c > 15 && c <= 20):
		return 32
	case (c >= 0 && c < 5) || (c > 20 && c <= 25):
		return 24
	case (c >= -5 && c < 0) || (c > 25 && c <= 28):
		return 14
	case (c >= -10 && c < -5) || (c > 28 && c <= 30):
		return 6
	default:
		return 0
	}
}

// ScoreHumidity scores relative humidity in %, 20 points max.
func ScoreHumidity(h float64) int {
	switch {
	case h >= 40 && h <= 60:
		return 20
	case (h >= 30 && h < 40) || (h > 60 && h <= 70):
		return 15
	case (h >= 20 && h < 30) || (h > 70 && h <= 80):
		return 10
	default:
		return 5
	}
}

// ScoreWind scores wind speed in m/s, 15 points max.
func ScoreWind(w float64) int {
	switch {
	case w >= 2 && w <= 4:
		return 15
	case w >= 0 && w < 2:
		return 10
	case w > 4 && w <= 6:
		return 8
	case w > 6 && w <= 8:
		return 5
	default:
		return 0
	}
}

// ScorePrecipitation scores 1h precipitation in mm, 15 points max.
func ScorePrecipitation(mm float64) int {
	switch {
	case mm <= 0:
		return 15
	case mm > 0 && mm <= 1:
		return 8
	default:
		return 0
	}
}

// ScorePM25 scores fine particulate matter in µg/m³, 10 points max.
func ScorePM25(pm25 *float64) int {
	if pm25 == nil {
		return neutralPM25Score
	}
	v := *pm25
	switch {
	case v <= 15:
		return 10
	case v <= 35:
		return 8
	case v <= 75:
		return 4
	default:
		return 0
	}
}

// GradeFor maps a total score to its grade.
func GradeFor(score int) Grade {
	switch {
	case score >= 85:
		return GradeGreat
	case score >= 70:
		return GradeGood
	case score >= 50:
		return GradeOK
	case score >= 30:
		return GradeBad
	default:
		return GradeAwful
	}
}

// SummaryFor returns the fixed summary text of a grade.
func SummaryFor(g Grade) string {
	return gradeSummaries[g]
}

func advise(obs Observation) []string {
	advice := []string{}
	if obs.PrecipitationMm.Value > 0 {
		advice = append(advice, AdvisoryPrecipitation)
	}
	if obs.WindSpeedMs.Value >= 6 {
		advice = append(advice, AdvisoryStrongWind)
	}
	if obs.TemperatureC.Value <= 0 {
		advice = append(advice, AdvisoryCold)
	}
	if obs.TemperatureC.Value >= 25 {
		advice = append(advice, AdvisoryHeat)
	}
	if obs.PM25 != nil && *obs.PM25 >= 36 {
		advice = append(advice, AdvisoryAirQuality)
	}
	return advice
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}
