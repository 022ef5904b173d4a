package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"runtrack/internal/models"
)

// Session returns the stored session, or nil when nobody is logged in.
func (s *Store) Session(ctx context.Context) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, expires_at FROM session WHERE id = 1`)

	var sess models.Session
	var expiresAt int64
	err := row.Scan(&sess.UserID, &sess.AccessToken, &sess.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = time.Unix(expiresAt, 0)
	return &sess, nil
}

// SaveSession stores or replaces the session.
func (s *Store) SaveSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, user_id, access_token, refresh_token, expires_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		sess.UserID, sess.AccessToken, sess.RefreshToken, sess.ExpiresAt.Unix())
	return localErr(err)
}

// UpdateTokens updates just the token pair, keeping the user id.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session SET
			access_token = ?,
			refresh_token = ?,
			expires_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1`,
		accessToken, refreshToken, expiresAt.Unix())
	return localErr(err)
}

// ClearSession removes the stored session.
func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	return err
}
