package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"runtrack/internal/models"
)

// GetPendingRun returns the pending-create entry for a run id, or nil if the
// run has no deferred upload.
func (s *Store) GetPendingRun(ctx context.Context, runID string) (*models.PendingRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, user_id, duration_millis, date_time_utc, lat, long,
			distance_meters, max_speed_kmh, total_elevation_meters, map_picture
		FROM pending_runs
		WHERE run_id = ?`, runID)

	pending, err := scanPendingRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// ListPendingRuns returns all pending-create entries owned by a user.
func (s *Store) ListPendingRuns(ctx context.Context, userID string) ([]models.PendingRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, user_id, duration_millis, date_time_utc, lat, long,
			distance_meters, max_speed_kmh, total_elevation_meters, map_picture
		FROM pending_runs
		WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PendingRun
	for rows.Next() {
		pending, err := scanPendingRun(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, pending)
	}
	return entries, rows.Err()
}

// UpsertPendingRun records a deferred remote create for a run.
func (s *Store) UpsertPendingRun(ctx context.Context, pending models.PendingRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_runs (
			run_id, user_id, duration_millis, date_time_utc, lat, long,
			distance_meters, max_speed_kmh, total_elevation_meters, map_picture
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			user_id = excluded.user_id,
			duration_millis = excluded.duration_millis,
			date_time_utc = excluded.date_time_utc,
			lat = excluded.lat,
			long = excluded.long,
			distance_meters = excluded.distance_meters,
			max_speed_kmh = excluded.max_speed_kmh,
			total_elevation_meters = excluded.total_elevation_meters,
			map_picture = excluded.map_picture`,
		pending.RunID,
		pending.UserID,
		pending.Run.Duration.Milliseconds(),
		pending.Run.StartTimeUTC.UTC().Format(time.RFC3339),
		pending.Run.StartLocation.Lat,
		pending.Run.StartLocation.Long,
		pending.Run.DistanceMeters,
		pending.Run.MaxSpeedKmh,
		pending.Run.TotalElevationMeters,
		pending.MapPicture,
	)
	return localErr(err)
}

// DeletePendingRun removes a pending-create entry, e.g. once the upload
// finally succeeded or the run was deleted before it ever synced.
func (s *Store) DeletePendingRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_runs WHERE run_id = ?`, runID)
	return err
}

// ListDeletedRuns returns all pending-delete entries owned by a user.
func (s *Store) ListDeletedRuns(ctx context.Context, userID string) ([]models.DeletedRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, user_id FROM deleted_runs WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DeletedRun
	for rows.Next() {
		var deleted models.DeletedRun
		if err := rows.Scan(&deleted.RunID, &deleted.UserID); err != nil {
			return nil, err
		}
		entries = append(entries, deleted)
	}
	return entries, rows.Err()
}

// UpsertDeletedRun records a deferred remote delete for a run.
func (s *Store) UpsertDeletedRun(ctx context.Context, deleted models.DeletedRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deleted_runs (run_id, user_id) VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET user_id = excluded.user_id`,
		deleted.RunID, deleted.UserID)
	return localErr(err)
}

// DeleteDeletedRun removes a pending-delete entry once the backend confirmed
// the deletion.
func (s *Store) DeleteDeletedRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deleted_runs WHERE run_id = ?`, runID)
	return err
}

func scanPendingRun(row rowScanner) (models.PendingRun, error) {
	var pending models.PendingRun
	var durationMillis int64
	var dateTimeUTC string

	err := row.Scan(
		&pending.RunID, &pending.UserID, &durationMillis, &dateTimeUTC,
		&pending.Run.StartLocation.Lat, &pending.Run.StartLocation.Long,
		&pending.Run.DistanceMeters, &pending.Run.MaxSpeedKmh,
		&pending.Run.TotalElevationMeters, &pending.MapPicture,
	)
	if err != nil {
		return models.PendingRun{}, err
	}

	pending.Run.ID = pending.RunID
	pending.Run.Duration = time.Duration(durationMillis) * time.Millisecond
	pending.Run.StartTimeUTC, err = time.Parse(time.RFC3339, dateTimeUTC)
	if err != nil {
		return models.PendingRun{}, fmt.Errorf("parsing date_time_utc %q: %w", dateTimeUTC, err)
	}
	return pending, nil
}
