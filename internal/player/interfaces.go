package player

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrViewGone means the rendered player message was deleted
	// externally. Fatal to the session.
	ErrViewGone = errors.New("player message no longer exists")

	ErrSongUnavailable = errors.New("song is not available")
	ErrCannotJoin      = errors.New("cannot join the requested voice channel")
)

// LoadedTrack is fully resolved track metadata, ready to stream.
type LoadedTrack struct {
	Title       string
	Uploader    string
	PageURL     string
	StreamURL   string
	Thumbnail   string
	DurationSec int
	IsLive      bool
}

// Loader resolves a media locator into a playable track. A playlistPos
// of 1 or higher selects a single item out of a collection locator.
type Loader interface {
	Load(ctx context.Context, link string, playlistPos int) (*LoadedTrack, error)
}

// VoiceTransport is the voice connection owned by one session. Play
// blocks until the track ends naturally or Stop interrupts it; the
// remaining methods return immediately.
type VoiceTransport interface {
	Join(ctx context.Context, channelID string) error
	Play(ctx context.Context, streamURL string, volume int) error
	Pause()
	Resume()
	SetVolume(v int)
	Stop()
	Disconnect() error
	ChannelID() string
	Connected() bool
	Playing() bool
}

// View is the rendered control-surface message bound to one session.
// Update implementations return ErrViewGone once the message has been
// deleted; Close renders a terminal embed and strips the components.
type View interface {
	Update(embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error
	Close(embed *discordgo.MessageEmbed) error
}

// Presence answers occupancy questions about voice channels.
type Presence interface {
	// NonBotOccupants lists the user IDs of non-bot members currently
	// in the channel.
	NonBotOccupants(channelID string) []string
	ChannelName(channelID string) string
}

// Actor identifies whoever triggered a control-surface action.
type Actor struct {
	ID        string
	ChannelID string // the actor's current voice channel, if any
	IsAdmin   bool
}
