package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"runtrack/internal/models"
)

// Runs returns all runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, duration_millis, date_time_utc, lat, long,
			distance_meters, max_speed_kmh, total_elevation_meters, map_picture_url
		FROM runs
		ORDER BY date_time_utc DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpsertRun inserts or updates a run, assigning a client-generated id when the
// run has none. Returns the id the run was stored under.
func (s *Store) UpsertRun(ctx context.Context, run models.Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, upsertRunQuery, runArgs(run)...)
	if err != nil {
		return "", localErr(err)
	}

	s.notify(ctx)
	return run.ID, nil
}

// UpsertRuns inserts or updates multiple runs in one transaction and returns
// their ids.
func (s *Store) UpsertRuns(ctx context.Context, runs []models.Run) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, localErr(err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, upsertRunQuery, runArgs(run)...); err != nil {
			return nil, localErr(err)
		}
		ids = append(ids, run.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, localErr(err)
	}

	s.notify(ctx)
	return ids, nil
}

// DeleteRun deletes a run by its id. Deleting a missing run is not an error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// DeleteAllRuns deletes every run, e.g. on logout.
func (s *Store) DeleteAllRuns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// Watch emits the current run list immediately and again after every local
// mutation, until ctx is cancelled. Slow consumers only ever miss intermediate
// snapshots, never the latest one.
func (s *Store) Watch(ctx context.Context) <-chan []models.Run {
	ch := make(chan []models.Run, 1)

	runs, err := s.Runs(ctx)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	if err == nil {
		ch <- runs
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// notify pushes a fresh snapshot to every watcher. Sends happen under the
// watcher lock so a channel is never written after Watch closed it.
func (s *Store) notify(ctx context.Context) {
	runs, err := s.Runs(ctx)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		// Replace a pending stale snapshot instead of blocking.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- runs:
		default:
		}
	}
}

const upsertRunQuery = `
	INSERT INTO runs (
		id, duration_millis, date_time_utc, lat, long,
		distance_meters, max_speed_kmh, total_elevation_meters, map_picture_url
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		duration_millis = excluded.duration_millis,
		date_time_utc = excluded.date_time_utc,
		lat = excluded.lat,
		long = excluded.long,
		distance_meters = excluded.distance_meters,
		max_speed_kmh = excluded.max_speed_kmh,
		total_elevation_meters = excluded.total_elevation_meters,
		map_picture_url = excluded.map_picture_url`

func runArgs(run models.Run) []any {
	var mapURL *string
	if run.MapPictureURL != "" {
		mapURL = &run.MapPictureURL
	}
	return []any{
		run.ID,
		run.Duration.Milliseconds(),
		run.StartTimeUTC.UTC().Format(time.RFC3339),
		run.StartLocation.Lat,
		run.StartLocation.Long,
		run.DistanceMeters,
		run.MaxSpeedKmh,
		run.TotalElevationMeters,
		mapURL,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.Run, error) {
	var run models.Run
	var durationMillis int64
	var dateTimeUTC string
	var mapURL sql.NullString

	err := row.Scan(
		&run.ID, &durationMillis, &dateTimeUTC,
		&run.StartLocation.Lat, &run.StartLocation.Long,
		&run.DistanceMeters, &run.MaxSpeedKmh, &run.TotalElevationMeters, &mapURL,
	)
	if err != nil {
		return models.Run{}, err
	}

	run.Duration = time.Duration(durationMillis) * time.Millisecond
	run.StartTimeUTC, err = time.Parse(time.RFC3339, dateTimeUTC)
	if err != nil {
		return models.Run{}, fmt.Errorf("parsing date_time_utc %q: %w", dateTimeUTC, err)
	}
	if mapURL.Valid {
		run.MapPictureURL = mapURL.String
	}
	return run, nil
}
