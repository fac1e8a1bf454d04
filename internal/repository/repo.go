package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	); err != nil {
		return nil, fmt.Errorf("ensure settings row: %w", err)
	}
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, paused_timeout_sec, empty_timeout_sec, dj_grace_sec,
	       leave_if_empty, default_volume, playlist_warn_count
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var b1 int
	if err := row.Scan(
		&s.GuildID,
		&s.PausedTimeoutSec,
		&s.EmptyTimeoutSec,
		&s.DJGraceSec,
		&b1,
		&s.DefaultVolume,
		&s.PlaylistWarnCount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	s.LeaveIfEmpty = b1 != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  paused_timeout_sec=?,
		  empty_timeout_sec=?,
		  dj_grace_sec=?,
		  leave_if_empty=?,
		  default_volume=?,
		  playlist_warn_count=?
		WHERE guild_id=?`,
		s.PausedTimeoutSec, s.EmptyTimeoutSec, s.DJGraceSec,
		boolToInt(s.LeaveIfEmpty), s.DefaultVolume, s.PlaylistWarnCount,
		s.GuildID,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
