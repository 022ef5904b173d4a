package remote

import (
	"time"

	"runtrack/internal/geo"
	"runtrack/internal/models"
)

// runDTO is a run as returned by the backend API. Fields must match the
// backend response exactly.
type runDTO struct {
	ID                   string  `json:"id"`
	DateTimeUTC          string  `json:"dateTimeUtc"`
	DurationMillis       int64   `json:"durationMillis"`
	DistanceMeters       int     `json:"distanceMeters"`
	Lat                  float64 `json:"lat"`
	Long                 float64 `json:"long"`
	AvgSpeedKmh          float64 `json:"avgSpeedKmh"`
	MaxSpeedKmh          float64 `json:"maxSpeedKmh"`
	TotalElevationMeters int     `json:"totalElevationMeters"`
	MapPictureURL        *string `json:"mapPictureUrl"`
}

// createRunRequest is the metadata part of the multipart create call. Unlike
// runDTO it only carries fields the client provides (no image URL).
type createRunRequest struct {
	DurationMillis       int64   `json:"durationMillis"`
	DistanceMeters       int     `json:"distanceMeters"`
	EpochMillis          int64   `json:"epochMillis"`
	Lat                  float64 `json:"lat"`
	Long                 float64 `json:"long"`
	AvgSpeedKmh          float64 `json:"avgSpeedKmh"`
	MaxSpeedKmh          float64 `json:"maxSpeedKmh"`
	TotalElevationMeters int     `json:"totalElevationMeters"`
	ID                   string  `json:"id"`
}

func (d runDTO) toRun() (models.Run, error) {
	startTime, err := time.Parse(time.RFC3339, d.DateTimeUTC)
	if err != nil {
		return models.Run{}, err
	}
	run := models.Run{
		ID:                   d.ID,
		Duration:             time.Duration(d.DurationMillis) * time.Millisecond,
		StartTimeUTC:         startTime.UTC(),
		StartLocation:        geo.Location{Lat: d.Lat, Long: d.Long},
		DistanceMeters:       d.DistanceMeters,
		MaxSpeedKmh:          d.MaxSpeedKmh,
		TotalElevationMeters: d.TotalElevationMeters,
	}
	if d.MapPictureURL != nil {
		run.MapPictureURL = *d.MapPictureURL
	}
	return run, nil
}

func toCreateRunRequest(run models.Run) createRunRequest {
	return createRunRequest{
		DurationMillis:       run.Duration.Milliseconds(),
		DistanceMeters:       run.DistanceMeters,
		EpochMillis:          run.StartTimeUTC.UnixMilli(),
		Lat:                  run.StartLocation.Lat,
		Long:                 run.StartLocation.Long,
		AvgSpeedKmh:          run.AvgSpeedKmh(),
		MaxSpeedKmh:          run.MaxSpeedKmh,
		TotalElevationMeters: run.TotalElevationMeters,
		ID:                   run.ID,
	}
}
