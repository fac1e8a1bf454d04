package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// parseList splits a comma separated env value, dropping empty items.
func parseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseKeywords parses "word=link,word=link" pairs.
func parseKeywords(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range parseList(s) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		YouTubeAPIKey:       os.Getenv("YOUTUBE_API_KEY"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DataDir:             getenv("DATA_DIR", "./data"),
		BotStatus:           getenv("BOT_STATUS", "online"),
		BotActivity:         getenv("BOT_ACTIVITY", "all your favorite songs"),

		PausedTimeoutSec: atoiOr(getenv("PAUSED_TIMEOUT", "90"), 90),
		EmptyTimeoutSec:  atoiOr(getenv("EMPTY_TIMEOUT", "60"), 60),
		DJGraceSec:       atoiOr(getenv("DJ_GRACE", "15"), 15),

		LeaveIfEmpty:         getenv("LEAVE_IF_EMPTY", "true") == "true",
		PlaylistWarnCount:    atoiOr(getenv("PLAYLIST_WARN_COUNT", "200"), 200),
		CollapsePlaylistItem: getenv("COLLAPSE_PLAYLIST_ITEM", "true") == "true",

		StartingVolume: atoiOr(getenv("STARTING_VOLUME", "10"), 10),
		MaxVolume:      atoiOr(getenv("MAX_VOLUME", "100"), 100),

		AdminUserIDs: parseList(os.Getenv("ADMIN_IDS")),
		Keywords:     parseKeywords(os.Getenv("KEYWORDS")),
	}

	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}
	if cfg.StartingVolume < 0 || cfg.StartingVolume > cfg.MaxVolume {
		cfg.StartingVolume = 10
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	return cfg, nil
}
