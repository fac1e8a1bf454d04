package handlers

import (
	"github.com/bwmarrin/discordgo"
)

// guildPresence answers voice occupancy questions from the gateway
// state cache.
type guildPresence struct {
	session *discordgo.Session
	guildID string
}

func (p *guildPresence) NonBotOccupants(channelID string) []string {
	if channelID == "" {
		return nil
	}
	g, _ := p.session.State.Guild(p.guildID)
	if g == nil {
		return nil
	}
	var out []string
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		m, _ := p.session.State.Member(p.guildID, vs.UserID)
		if m != nil && m.User != nil && m.User.Bot {
			continue
		}
		out = append(out, vs.UserID)
	}
	return out
}

func (p *guildPresence) ChannelName(channelID string) string {
	ch, err := p.session.State.Channel(channelID)
	if err != nil || ch == nil {
		ch, _ = p.session.Channel(channelID)
	}
	if ch == nil {
		return ""
	}
	return ch.Name
}

func userVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return ""
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
