package domain

import "math"

// GeoPoint is a WGS-84 latitude/longitude pair in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GridCell addresses one cell of the provider grid.
type GridCell struct {
	NX int `json:"nx"`
	NY int `json:"ny"`
}

// LCCGrid describes a Lambert Conformal Conic grid. Angles are in degrees,
// distances in kilometres, origin offsets in grid units.
type LCCGrid struct {
	EarthRadiusKm float64
	SpacingKm     float64
	StdParallel1  float64
	StdParallel2  float64
	OriginLon     float64
	OriginLat     float64
	OriginX       float64
	OriginY       float64
}

// KMAGrid is the KMA village forecast 5 km grid.
var KMAGrid = LCCGrid{
	EarthRadiusKm: 6371.00877,
	SpacingKm:     5.0,
	StdParallel1:  30.0,
	StdParallel2:  60.0,
	OriginLon:     126.0,
	OriginLat:     38.0,
	OriginX:       43,
	OriginY:       136,
}

const degToRad = math.Pi / 180.0

// Project converts a point to its KMA grid cell.
func Project(lat, lon float64) GridCell {
	return KMAGrid.Project(lat, lon)
}

// ProjectPoint is Project for a GeoPoint.
func ProjectPoint(p GeoPoint) GridCell {
	return KMAGrid.Project(p.Lat, p.Lon)
}

// Project converts a latitude/longitude in degrees to the grid cell that
// contains it. Coordinates are rounded half up. Inputs are not range checked;
// a non-finite result yields cell (0, 0).
func (g LCCGrid) Project(lat, lon float64) GridCell {
	re := g.EarthRadiusKm / g.SpacingKm
	slat1 := g.StdParallel1 * degToRad
	slat2 := g.StdParallel2 * degToRad
	olon := g.OriginLon * degToRad
	olat := g.OriginLat * degToRad

	sn := math.Tan(math.Pi*0.25+slat2*0.5) / math.Tan(math.Pi*0.25+slat1*0.5)
	sn = math.Log(math.Cos(slat1)/math.Cos(slat2)) / math.Log(sn)

	sf := math.Tan(math.Pi*0.25 + slat1*0.5)
	sf = math.Pow(sf, sn) * math.Cos(slat1) / sn

	ro := math.Tan(math.Pi*0.25 + olat*0.5)
	ro = re * sf / math.Pow(ro, sn)

	ra := math.Tan(math.Pi*0.25 + lat*degToRad*0.5)
	ra = re * sf / math.Pow(ra, sn)

	theta := lon*degToRad - olon
	if theta > math.Pi {
		theta -= 2.0 * math.Pi
	}
	if theta < -math.Pi {
		theta += 2.0 * math.Pi
	}
	theta *= sn

	return GridCell{
		NX: roundHalfUp(ra*math.Sin(theta) + g.OriginX),
		NY: roundHalfUp(ro - ra*math.Cos(theta) + g.OriginY),
	}
}

// maxCellIndex bounds the float to int conversion; anything past it is far
// outside any grid and treated like a non-finite value.
const maxCellIndex = 1 << 31

// roundHalfUp returns floor(x+0.5). Converting NaN, ±Inf or out-of-range
// floats to int is implementation specific in Go, so those map to 0.
func roundHalfUp(x float64) int {
	v := math.Floor(x + 0.5)
	if math.IsNaN(v) || math.Abs(v) > maxCellIndex {
		return 0
	}
	return int(v)
}
