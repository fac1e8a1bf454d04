package player

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/solmari/sonata/internal/utils"
)

const selectWindow = 25 // Discord's hard cap on select menu options

// BuildPlayerEmbed renders the session's control-surface embed for the
// given song.
func BuildPlayerEmbed(s *Session, song *Song) *discordgo.MessageEmbed {
	title := "Music Player | " + s.ChannelName()
	if s.State() == StatePaused {
		title += " | Paused"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Length", Value: song.DurationText(), Inline: true},
		{Name: "Volume", Value: fmt.Sprintf("%d%%", s.Volume()), Inline: true},
	}
	if dj := s.DJ(); dj != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "DJ", Value: "<@" + dj + ">", Inline: true,
		})
	}
	if u := song.VideoURL(); u != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Video URL", Value: u,
		})
	}
	if u := song.PlaylistURL(); u != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Playlist URL", Value: u,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: "**" + utils.EscapeMd(song.Title()) + "**\n" + utils.EscapeMd(song.Desc()),
		Color:       0x006400,
		Fields:      fields,
	}
	if song.Thumbnail() != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: song.Thumbnail()}
	}
	return embed
}

// BuildTerminalEmbed is the minimal embed shown while the session is
// starting or after it stopped, when no controls apply.
func BuildTerminalEmbed(s *Session, title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: title,
		Color: 0x992222,
	}
}

// BuildComponents renders the song picker and the two button rows.
func BuildComponents(s *Session, song *Song) []discordgo.MessageComponent {
	songs := s.queue.Snapshot()
	pos := s.queue.Pos()

	// the menu holds at most 25 entries; on long queues show a window
	// that keeps a few already-played entries visible above the cursor
	begin := 0
	if len(songs) > selectWindow {
		begin = pos - 4
		if begin < 0 {
			begin = 0
		}
		if begin+selectWindow > len(songs) {
			begin = len(songs) - selectWindow
		}
	}
	end := begin + selectWindow
	if end > len(songs) {
		end = len(songs)
	}

	options := make([]discordgo.SelectMenuOption, 0, end-begin)
	for i := begin; i < end; i++ {
		entry := songs[i]
		marker := ""
		switch {
		case i == pos:
			marker = "🟢 "
		case entry.Failed():
			marker = "❌ "
		}
		options = append(options, discordgo.SelectMenuOption{
			Label: utils.Truncate(marker+fmt.Sprintf("%d. %s", i+1, entry.Title()), 100),
			Value: strconv.FormatInt(entry.ID, 10),
		})
	}

	shuffleStyle := discordgo.SecondaryButton
	if s.queue.Shuffle() {
		shuffleStyle = discordgo.SuccessButton
	}
	playPause := discordgo.Button{
		Emoji:    &discordgo.ComponentEmoji{Name: "⏸️"},
		Style:    discordgo.SecondaryButton,
		CustomID: "player::pause",
	}
	if s.State() == StatePaused {
		playPause = discordgo.Button{
			Emoji:    &discordgo.ComponentEmoji{Name: "▶️"},
			Style:    discordgo.SecondaryButton,
			CustomID: "player::play",
		}
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    "player::select",
				Placeholder: fmt.Sprintf("Queue [%d/%d]", pos+1, len(songs)),
				Options:     options,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			playPause,
			discordgo.Button{
				Emoji:    &discordgo.ComponentEmoji{Name: "⏭️"},
				Style:    discordgo.SecondaryButton,
				CustomID: "player::skip",
			},
			discordgo.Button{
				Emoji:    &discordgo.ComponentEmoji{Name: "🔀"},
				Style:    shuffleStyle,
				CustomID: "player::shuffle",
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Emoji:    &discordgo.ComponentEmoji{Name: "🔉"},
				Style:    discordgo.SecondaryButton,
				CustomID: "player::lower",
			},
			discordgo.Button{
				Emoji:    &discordgo.ComponentEmoji{Name: "🔊"},
				Style:    discordgo.SecondaryButton,
				CustomID: "player::higher",
			},
			discordgo.Button{
				Emoji:    &discordgo.ComponentEmoji{Name: "📍"},
				Style:    discordgo.SecondaryButton,
				CustomID: "player::move",
			},
			discordgo.Button{
				Emoji:    &discordgo.ComponentEmoji{Name: "⏹️"},
				Style:    discordgo.DangerButton,
				CustomID: "player::stop",
			},
		}},
	}
}
