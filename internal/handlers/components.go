package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/solmari/sonata/internal/player"
)

const componentPrefix = "player::"

// handleComponent dispatches button and select-menu presses on the
// player message. Checks run in order: stale message, dead voice
// connection, permission, then the action itself.
func (h *CommandHandler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, componentPrefix) {
		return
	}
	action := strings.TrimPrefix(customID, componentPrefix)

	sess := h.registry.Peek(i.GuildID)
	if sess == nil || sess.State() == player.StateReady {
		h.markOutdated(s, i)
		return
	}
	if mv, ok := sess.View().(*MessageView); ok && i.Message != nil && mv.MessageID() != i.Message.ID {
		h.markOutdated(s, i)
		return
	}
	if !sess.VoiceConnected() {
		sess.Stop()
		h.markOutdated(s, i)
		return
	}

	actorID := userIDOf(i)
	actor := player.Actor{
		ID:        actorID,
		ChannelID: userVoiceChannel(s, i.GuildID, actorID),
		IsAdmin:   h.cfg.IsAdmin(actorID),
	}
	restrict := action == "stop" || action == "move"
	if !sess.IsAllowed(actor, restrict) {
		h.reply(s, i, "You cannot use this right now.", true)
		return
	}

	// acknowledge before acting; the action itself re-renders the message
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		slog.Warn("component ack failed", "guildID", i.GuildID, "action", action, "err", err)
	}

	ctx := context.Background()
	switch action {
	case "play":
		sess.Resume()
	case "pause":
		sess.Pause()
	case "skip":
		go sess.Skip(ctx)
	case "shuffle":
		sess.ToggleShuffle()
	case "lower":
		sess.VolumeLower()
	case "higher":
		sess.VolumeHigher()
	case "stop":
		sess.Stop()
	case "move":
		go func() {
			if err := sess.Move(ctx, actor); errors.Is(err, player.ErrCannotJoin) {
				slog.Warn("move failed", "guildID", i.GuildID, "channelID", actor.ChannelID)
			}
		}()
	case "select":
		values := i.MessageComponentData().Values
		if len(values) == 0 {
			return
		}
		songID, err := strconv.ParseInt(values[0], 10, 64)
		if err != nil {
			return
		}
		go func() {
			if err := sess.Select(ctx, songID); errors.Is(err, player.ErrSongUnavailable) {
				sess.RefreshView()
			}
		}()
	default:
		slog.Debug("unknown component action", "guildID", i.GuildID, "action", action)
	}
}

// markOutdated rewrites a player message whose session ended so its
// controls stop inviting presses.
func (h *CommandHandler) markOutdated(s *discordgo.Session, i *discordgo.InteractionCreate) {
	empty := []discordgo.MessageComponent{}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title: "This player is no longer active.",
				Color: 0x992222,
			}},
			Components: empty,
		},
	})
	if err != nil {
		slog.Debug("mark outdated failed", "guildID", i.GuildID, "err", err)
	}
}
