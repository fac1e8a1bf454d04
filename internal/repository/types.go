package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

// Settings are per-guild overrides of the process defaults.
type Settings struct {
	GuildID           string
	PausedTimeoutSec  int
	EmptyTimeoutSec   int
	DJGraceSec        int
	LeaveIfEmpty      bool
	DefaultVolume     int
	PlaylistWarnCount int
}
