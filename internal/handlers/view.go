package handlers

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/solmari/sonata/internal/player"
)

// MessageView binds a session's control surface to one Discord message.
// Edits after the message was deleted surface as player.ErrViewGone so
// the session can shut down.
type MessageView struct {
	session   *discordgo.Session
	channelID string
	messageID string
}

func NewMessageView(session *discordgo.Session, channelID, messageID string) *MessageView {
	return &MessageView{session: session, channelID: channelID, messageID: messageID}
}

func (v *MessageView) MessageID() string { return v.messageID }

func (v *MessageView) Update(embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	_, err := v.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    v.channelID,
		ID:         v.messageID,
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &components,
	})
	if isMessageGone(err) {
		return player.ErrViewGone
	}
	return err
}

func (v *MessageView) Close(embed *discordgo.MessageEmbed) error {
	empty := []discordgo.MessageComponent{}
	_, err := v.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    v.channelID,
		ID:         v.messageID,
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &empty,
	})
	if isMessageGone(err) {
		return player.ErrViewGone
	}
	return err
}

func isMessageGone(err error) bool {
	if err == nil {
		return false
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownMessage {
			return true
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}
