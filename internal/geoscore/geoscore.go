package geoscore

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the sphere radius used for every distance in the game.
	EarthRadiusMeters = 6371000.0

	// MaxDistance is the default distance (meters) at which a guess scores 0.
	MaxDistance = 8000.0

	// DefaultExponent controls how steeply the score decays with distance.
	// Higher values reward precise guesses more.
	DefaultExponent = 2.3

	// MaxScore is the best base score a single guess can get.
	MaxScore = 100
)

// Haversine distance (meters) between two WGS84 lat/lng points (degrees).
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := lat1 * math.Pi / 180.0
	φ2 := lat2 * math.Pi / 180.0
	dφ := (lat2 - lat1) * math.Pi / 180.0
	dλ := (lng2 - lng1) * math.Pi / 180.0

	sinDφ := math.Sin(dφ / 2)
	sinDλ := math.Sin(dλ / 2)

	a := sinDφ*sinDφ + math.Cos(φ1)*math.Cos(φ2)*sinDλ*sinDλ
	// Out-of-range latitudes can push a outside [0, 1].
	a = math.Max(0, math.Min(1, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Score returns an integer score in [0, 100].
// - distanceMeters: how far the guess landed from the answer
// - maxDistance: distance at (and beyond) which the score is 0
// - exponent: decay exponent, 100*(1-d/max)^exponent
//
// Negative distances count as a perfect guess and NaN scores 0, so bad input
// never leaks out of the valid range.
func Score(distanceMeters, maxDistance, exponent float64) int {
	if maxDistance <= 0 || math.IsNaN(distanceMeters) {
		return 0
	}
	if distanceMeters < 0 {
		distanceMeters = 0
	}
	if distanceMeters >= maxDistance {
		return 0
	}

	raw := MaxScore * math.Pow(1-distanceMeters/maxDistance, exponent)
	score := int(math.Round(raw))

	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// FormatDistance formats distance in a human-readable way.
// Under a mile it is shown in feet, otherwise in miles.
func FormatDistance(meters float64) string {
	const metersPerMile = 1609.344
	const feetPerMeter = 3.28084
	if meters < 1609 {
		return fmt.Sprintf("%.0fft", math.Round(meters*feetPerMeter))
	}
	return fmt.Sprintf("%.2fmi", meters/metersPerMile)
}
