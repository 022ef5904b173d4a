package geo

import "math"

const earthRadiusMeters = 6_371_000

// DistanceTo returns the great-circle (haversine) distance to other, in meters.
func (l Location) DistanceTo(other Location) float64 {
	lat1 := l.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - l.Lat) * math.Pi / 180
	dLong := (other.Long - l.Long) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLong/2)*math.Sin(dLong/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// TotalDistanceMeters sums the distance between consecutive fixes within each
// segment. The total is rounded to the nearest meter once, after summing all
// segments, so rounding error cannot accumulate per segment.
func TotalDistanceMeters(route Route) int {
	var total float64
	for _, segment := range route {
		for i := 1; i < len(segment); i++ {
			total += segment[i-1].DistanceTo(segment[i].Location)
		}
	}
	return int(math.Round(total))
}

// MaxSpeedKmh returns the highest speed between any two consecutive fixes of
// any segment. Pairs with no elapsed time between them contribute zero rather
// than dividing by zero.
func MaxSpeedKmh(route Route) float64 {
	var max float64
	for _, segment := range route {
		for i := 1; i < len(segment); i++ {
			hours := (segment[i].Elapsed - segment[i-1].Elapsed).Hours()
			if hours <= 0 {
				continue
			}
			speed := segment[i-1].DistanceTo(segment[i].Location) / 1000 / hours
			if speed > max {
				max = speed
			}
		}
	}
	return max
}

// TotalElevationMeters sums the positive altitude deltas between consecutive
// fixes, rounded to the nearest meter. Descents do not cancel climbs.
func TotalElevationMeters(route Route) int {
	var total float64
	for _, segment := range route {
		for i := 1; i < len(segment); i++ {
			if delta := segment[i].Altitude - segment[i-1].Altitude; delta > 0 {
				total += delta
			}
		}
	}
	return int(math.Round(total))
}
