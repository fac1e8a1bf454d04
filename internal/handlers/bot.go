package handlers

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/solmari/sonata/internal/config"
	"github.com/solmari/sonata/internal/player"
	"github.com/solmari/sonata/internal/repository"
)

type Bot struct {
	cfg      *config.Config
	repo     *repository.Repo
	registry *player.Registry
	cmd      *CommandHandler
}

func NewBot(cfg *config.Config, repo *repository.Repo) *Bot {
	registry := player.NewRegistry()
	return &Bot{
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		cmd:      NewCommandHandler(cfg, repo, registry),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		appID := s.State.User.ID
		if err := b.cmd.RegisterCommands(s, appID); err != nil {
			slog.Error("register application commands", "err", err)
		}
		data := discordgo.UpdateStatusData{Status: b.cfg.BotStatus}
		if b.cfg.BotActivity != "" {
			data.Activities = []*discordgo.Activity{{
				Name: b.cfg.BotActivity,
				Type: discordgo.ActivityTypeListening,
			}}
		}
		if err := s.UpdateStatusComplex(data); err != nil {
			slog.Warn("update status", "err", err)
		}
	})

	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()
	return nil
}

// onVoiceStateUpdate routes voice channel joins/leaves to the guild's
// session. Only movement in and out of the session's own channel
// matters.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	sess := b.registry.Peek(vs.GuildID)
	if sess == nil {
		return
	}

	// the bot itself being kicked or moved out ends the session
	if vs.UserID == s.State.User.ID {
		if vs.ChannelID == "" && sess.State() != player.StateReady {
			slog.Info("bot disconnected from voice", "guildID", vs.GuildID)
			sess.Stop()
		}
		return
	}

	m, _ := s.State.Member(vs.GuildID, vs.UserID)
	if m != nil && m.User != nil && m.User.Bot {
		return
	}

	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	after := vs.ChannelID
	if before == after {
		return // mute/deafen toggles and the like
	}

	own := sess.VoiceChannelID()
	if own == "" {
		return
	}
	switch {
	case before == own && after != own:
		sess.OnMemberLeave(vs.UserID)
	case after == own && before != own:
		sess.OnMemberJoin(vs.UserID)
	}
}
