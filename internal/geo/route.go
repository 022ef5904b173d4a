package geo

import "time"

// Location is a point on the Earth's surface in decimal degrees.
type Location struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// LocationWithAltitude pairs a position with its altitude in meters.
type LocationWithAltitude struct {
	Location
	Altitude float64 `json:"altitude"`
}

// Fix is a single location sample stamped with the elapsed session time at
// which it was recorded.
type Fix struct {
	LocationWithAltitude
	Elapsed time.Duration `json:"elapsed"`
}

// Route is an ordered list of segments. Each segment holds the fixes recorded
// during one continuous tracking interval; pausing ends the segment, so no
// distance is ever counted across a segment boundary.
type Route [][]Fix
