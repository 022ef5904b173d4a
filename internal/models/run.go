package models

import (
	"time"

	"runtrack/internal/geo"
)

// Run is a single persisted run.
type Run struct {
	// ID is empty until the first local write assigns a client-generated id.
	// The server keeps client ids, so an id stays stable across sync.
	ID                   string
	Duration             time.Duration
	StartTimeUTC         time.Time
	StartLocation        geo.Location
	DistanceMeters       int
	MaxSpeedKmh          float64
	TotalElevationMeters int
	// MapPictureURL is set by the server once it has rendered a route image.
	MapPictureURL string
}

// AvgSpeedKmh is derived from distance and duration, never stored.
func (r Run) AvgSpeedKmh() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.DistanceMeters) / 1000 / r.Duration.Hours()
}

// PendingRun is a locally committed run whose remote create has not succeeded
// yet. The full run snapshot and map image are embedded so the deferred upload
// survives process restarts.
type PendingRun struct {
	RunID      string
	Run        Run
	MapPicture []byte
	UserID     string
}

// DeletedRun records a locally deleted run whose remote delete has not
// succeeded yet.
type DeletedRun struct {
	RunID  string
	UserID string
}

// Session identifies the authenticated user and carries the token pair.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
