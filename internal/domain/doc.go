// Package domain models KMA (Korea Meteorological Administration) short-range
// weather data and the running suitability index computed from it.
//
// # Data Source
//
// Observations come from the KMA API hub village forecast service
// (VilageFcstInfoService_2.0). Two operations are used:
//
//	getUltraSrtNcst  ultra short-term nowcast, issued hourly at HH00
//	getUltraSrtFcst  ultra short-term forecast, issued hourly at HH30, ~6h ahead
//
// # Grid
//
// The provider does not accept latitude/longitude. Every request addresses a
// cell (nx, ny) of a fixed 5 km Lambert Conformal Conic grid with standard
// parallels 30°N and 60°N, origin 38°N 126°E at cell (43, 136). See [LCCGrid].
// Central Seoul (37.5665, 126.978) is cell (60, 127).
//
// # KMA Data Conventions
//
// Base date/time:
//
//	base_date is YYYYMMDD and base_time is HHmm, both in KST (UTC+9).
//	Nowcasts use HH00, forecasts HH30. A batch is published some minutes
//	after its base time, so an empty answer is retried one hour earlier.
//
// Categories:
//
//	T1H  temperature (°C)           TMP  temperature (°C, forecast)
//	REH  relative humidity (%)      WSD  wind speed (m/s)
//	RN1  1h precipitation (mm)      PCP  precipitation (mm, forecast)
//	POP  precipitation probability (%), passed through, never scored
//
// Precipitation encoding:
//
//	Values are numeric strings ("0", "1.5") or descriptive text:
//	"강수없음" (no precipitation) → 0, "1mm 미만" (under 1 mm) → 0,
//	"1.0mm", "50.0mm 이상" → the number. Anything else is unparseable and
//	treated as absent. See [ParsePrecipitation].
//
// # Running Index
//
// Five table-driven factors are summed and clamped to 0–100:
//
//	temperature  40    humidity  20    wind  15    precipitation  15    PM2.5  10
//
// Grades: ≥85 GREAT | ≥70 GOOD | ≥50 OK | ≥30 BAD | AWFUL. Advisories are
// evaluated on the raw observation values, not on the factor scores, and
// always appear in the same order. See [Score].
package domain
