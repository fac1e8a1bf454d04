package config

type Config struct {
	DiscordToken        string
	YouTubeAPIKey       string
	SpotifyClientID     string
	SpotifyClientSecret string
	DataDir             string
	BotStatus           string // online/dnd/idle
	BotActivity         string

	PausedTimeoutSec int // disconnect after being paused this long
	EmptyTimeoutSec  int // disconnect after the channel is empty this long
	DJGraceSec       int // grace period before a departed DJ is replaced

	LeaveIfEmpty         bool // false: only admins may stop/move
	PlaylistWarnCount    int  // warn when a playlist is bigger than this
	CollapsePlaylistItem bool // watch URL inside a playlist plays just the video

	StartingVolume int // percent
	MaxVolume      int // percent

	AdminUserIDs []string
	Keywords     map[string]string // word -> link aliases for /play
}

func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
