// Package discord posts team-visible announcements to a Discord channel
// using discordgo. The announcer is write-only: it never listens for
// messages, it only pushes notes the assistant creates for the team.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Announcer pushes team notes to a fixed Discord channel.
type Announcer struct {
	channelID string
	logger    *slog.Logger
	session   *discordgo.Session
	connected atomic.Bool
}

// New creates a (not yet connected) announcer.
func New(botToken, channelID string, logger *slog.Logger) (*Announcer, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}

	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	// Write-only: no message intents needed.
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Announcer{
		channelID: channelID,
		logger:    logger.With("component", "discord"),
		session:   session,
	}, nil
}

// Start opens the gateway connection.
func (a *Announcer) Start() error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	a.connected.Store(true)
	a.logger.Info("discord announcer connected", "channel_id", a.channelID)
	return nil
}

// Stop closes the connection.
func (a *Announcer) Stop() {
	a.connected.Store(false)
	if err := a.session.Close(); err != nil {
		a.logger.Warn("closing discord session", "error", err)
	}
}

// AnnounceTeamNote posts a team note to the configured channel.
func (a *Announcer) AnnounceTeamNote(ctx context.Context, text string) error {
	if !a.connected.Load() {
		return fmt.Errorf("discord announcer not connected")
	}

	_, err := a.session.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Nota para el equipo",
			Description: text,
			Color:       0x2b6cb0,
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending discord announcement: %w", err)
	}

	a.logger.Debug("team note announced", "channel_id", a.channelID)
	return nil
}
