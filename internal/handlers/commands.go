package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/solmari/sonata/internal/autocomplete"
	"github.com/solmari/sonata/internal/config"
	"github.com/solmari/sonata/internal/mediainfo"
	"github.com/solmari/sonata/internal/player"
	"github.com/solmari/sonata/internal/repository"
	"github.com/solmari/sonata/internal/spotify"
	"github.com/solmari/sonata/internal/stream"
)

var errNotConfigured = errors.New("backend not configured")

type CommandHandler struct {
	cfg      *config.Config
	repo     *repository.Repo
	registry *player.Registry
	loader   *stream.Resolver
	media    *mediainfo.Client
	sp       *spotify.Client
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, registry *player.Registry) *CommandHandler {
	h := &CommandHandler{
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		loader:   stream.NewResolver(),
	}
	if cfg.YouTubeAPIKey != "" {
		h.media = mediainfo.NewClient(cfg.YouTubeAPIKey)
	}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		h.sp = spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}
	return h
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song, playlist or link in your voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "query",
					Description:  "YouTube/Spotify link, keyword or search terms",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
	})
	return err
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == "play" {
			h.cmdPlay(s, i)
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(s, i)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "play" {
		return
	}
	var query string
	for _, opt := range data.Options {
		if opt.Focused || opt.Name == "query" {
			query = opt.StringValue()
		}
		if opt.Focused {
			break
		}
	}
	choices := autocomplete.Suggest(context.Background(), query, h.cfg.Keywords)
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		h.reply(s, i, "This command only works in a server.", true)
		return
	}
	actorID := userIDOf(i)
	voiceCh := userVoiceChannel(s, i.GuildID, actorID)
	if voiceCh == "" {
		h.reply(s, i, "Join a voice channel first.", true)
		return
	}

	sess := h.registry.Get(i.GuildID, func() *player.Session {
		return h.newSession(s, i.GuildID)
	})
	st := sess.State()
	switch st {
	case player.StateLoading:
		h.reply(s, i, "Someone else just started the player, give it a second.", true)
		return
	case player.StateExit:
		h.reply(s, i, "The player is stopping right now, try again in a moment.", true)
		return
	}
	running := st != player.StateReady
	if running && sess.VoiceChannelID() != "" && sess.VoiceChannelID() != voiceCh {
		h.reply(s, i, "I am already playing in another voice channel.", true)
		return
	}

	var raw string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			raw = opt.StringValue()
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		h.reply(s, i, "Tell me what to play.", true)
		return
	}

	h.deferReply(s, i, running)

	ctx := context.Background()
	if !running && !sess.TryStartup() {
		// a concurrent start request won the claim between the state
		// check and here
		h.editReply(s, i, "Someone else just started the player, give it a second.")
		return
	}

	query := h.normalizeQuery(raw)
	songs, err := h.resolveSongs(ctx, s, i, query)
	if err != nil {
		if !running {
			sess.Reset()
		}
		h.editReply(s, i, userMessage(err))
		return
	}
	if len(songs) == 0 {
		if !running {
			sess.Reset()
		}
		h.editReply(s, i, "Nothing found.")
		return
	}

	if running {
		sess.Queue().EnqueueBatch(songs)
		h.editReply(s, i, "Added 👍")
		sess.RefreshView()
		return
	}

	// fresh playback cycle: pick up per-guild overrides first
	sess.ApplySettings(h.sessionSettings(ctx, i.GuildID))
	actor := player.Actor{ID: actorID, ChannelID: voiceCh, IsAdmin: h.cfg.IsAdmin(actorID)}
	sess.Init(actor)
	sess.Queue().EnqueueBatch(songs)

	first := sess.Queue().Advance(ctx, false)
	if first == nil {
		sess.Reset()
		h.editReply(s, i, "Could not load any of the requested media.")
		return
	}

	msg, err := s.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{player.BuildTerminalEmbed(sess, "STARTING")},
	})
	if err != nil {
		sess.Reset()
		h.editReply(s, i, "I could not create the player message here.")
		return
	}
	sess.SetView(NewMessageView(s, i.ChannelID, msg.ID))

	if err := sess.Connect(ctx, voiceCh); err != nil {
		slog.Warn("voice join failed", "guildID", i.GuildID, "channelID", voiceCh, "err", err)
		_ = s.ChannelMessageDelete(i.ChannelID, msg.ID)
		sess.Reset()
		h.editReply(s, i, "I cannot join your voice channel.")
		return
	}

	h.editReply(s, i, "Starting 🎶")
	go sess.PlayLoop(context.Background(), first, false)
}

func (h *CommandHandler) newSession(s *discordgo.Session, guildID string) *player.Session {
	settings := h.sessionSettings(context.Background(), guildID)
	voice := stream.NewVoice(s, guildID)
	presence := &guildPresence{session: s, guildID: guildID}
	return player.NewSession(guildID, settings, voice, presence, h.loader)
}

// sessionSettings layers per-guild sqlite overrides on top of process
// config.
func (h *CommandHandler) sessionSettings(ctx context.Context, guildID string) player.Settings {
	out := player.Settings{
		PausedTimeout:  time.Duration(h.cfg.PausedTimeoutSec) * time.Second,
		EmptyTimeout:   time.Duration(h.cfg.EmptyTimeoutSec) * time.Second,
		DJGrace:        time.Duration(h.cfg.DJGraceSec) * time.Second,
		LeaveIfEmpty:   h.cfg.LeaveIfEmpty,
		StartingVolume: h.cfg.StartingVolume,
		MaxVolume:      h.cfg.MaxVolume,
	}
	set, err := h.repo.UpsertSettings(ctx, guildID)
	if err != nil {
		slog.Warn("guild settings unavailable, using defaults", "guildID", guildID, "err", err)
		return out
	}
	out.PausedTimeout = time.Duration(set.PausedTimeoutSec) * time.Second
	out.EmptyTimeout = time.Duration(set.EmptyTimeoutSec) * time.Second
	out.DJGrace = time.Duration(set.DJGraceSec) * time.Second
	out.LeaveIfEmpty = set.LeaveIfEmpty
	out.StartingVolume = set.DefaultVolume
	return out
}

// normalizeQuery applies keyword aliases and optionally collapses a
// watch-page URL that carries playlist parameters down to the single
// video.
func (h *CommandHandler) normalizeQuery(raw string) string {
	if link, ok := h.cfg.Keywords[strings.ToLower(raw)]; ok {
		return link
	}
	if !h.cfg.CollapsePlaylistItem {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if !strings.Contains(u.Host, "youtu") || !strings.Contains(u.Path, "watch") {
		return raw
	}
	q := u.Query()
	if q.Get("list") == "" {
		return raw
	}
	q.Del("list")
	q.Del("index")
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *CommandHandler) resolveSongs(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, query string) ([]*player.Song, error) {
	switch {
	case spotify.IsSpotify(query):
		return h.resolveSpotify(ctx, query)
	case playlistIDOf(query) != "":
		return h.resolvePlaylist(ctx, s, i, playlistIDOf(query))
	case videoIDOf(query) != "":
		return h.resolveVideo(ctx, videoIDOf(query))
	default:
		h.editReply(s, i, "Looking that up, this takes a little longer...")
		locator := query
		if !strings.HasPrefix(locator, "http") {
			locator = "ytsearch1:" + locator
		}
		tracks, err := h.loader.LoadAll(ctx, locator)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", query, err)
		}
		songs := make([]*player.Song, 0, len(tracks))
		for _, track := range tracks {
			songs = append(songs, player.NewSongFromTrack(track))
		}
		return songs, nil
	}
}

func (h *CommandHandler) resolvePlaylist(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, listID string) ([]*player.Song, error) {
	if h.media == nil {
		return nil, fmt.Errorf("%w: YouTube API key missing", errNotConfigured)
	}
	count, err := h.media.PlaylistItemCount(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("playlist lookup: %w", err)
	}
	if count > h.cfg.PlaylistWarnCount {
		h.editReply(s, i, fmt.Sprintf("Loading %d entries, this may take a while...", count))
	}
	var songs []*player.Song
	token := ""
	for {
		page, err := h.media.PlaylistItems(ctx, listID, token)
		if err != nil {
			return nil, fmt.Errorf("playlist page: %w", err)
		}
		for _, it := range page.Items {
			songs = append(songs, player.NewSongFromItem(it))
		}
		token = page.NextPageToken
		if token == "" {
			break
		}
	}
	return songs, nil
}

func (h *CommandHandler) resolveVideo(ctx context.Context, videoID string) ([]*player.Song, error) {
	if h.media == nil {
		return nil, fmt.Errorf("%w: YouTube API key missing", errNotConfigured)
	}
	item, err := h.media.Video(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("video lookup: %w", err)
	}
	return []*player.Song{player.NewSongFromItem(*item)}, nil
}

func (h *CommandHandler) resolveSpotify(ctx context.Context, query string) ([]*player.Song, error) {
	if h.sp == nil {
		return nil, fmt.Errorf("%w: Spotify credentials missing", errNotConfigured)
	}
	tracks, _, err := h.sp.Resolve(ctx, query, 0)
	if err != nil {
		return nil, fmt.Errorf("spotify resolve: %w", err)
	}
	songs := make([]*player.Song, 0, len(tracks))
	for _, t := range tracks {
		locator := fmt.Sprintf("ytsearch1:%q %q", t.Name, t.Artist)
		songs = append(songs, player.NewSongFromSearch(locator, t.Name, t.Artist))
	}
	return songs, nil
}

func playlistIDOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Host, "youtu") {
		return ""
	}
	return u.Query().Get("list")
}

func videoIDOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Host, "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	if strings.Contains(u.Host, "youtu") && strings.Contains(u.Path, "watch") {
		return u.Query().Get("v")
	}
	return ""
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errNotConfigured):
		return "That source is not configured on this bot."
	case errors.Is(err, mediainfo.ErrNotAvailable):
		return "That video is private or unavailable."
	default:
		return "Something went wrong resolving that link."
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "err", err)
	}
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
