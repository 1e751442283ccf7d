package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	appLog "daycal/internal/log"
)

// EmbedSender is the discordgo call Discord relies on.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts reminders as embeds into one channel. Permission is granted
// once the bot session has been opened.
type Discord struct {
	token     string
	channelID string

	mu      sync.Mutex
	session *discordgo.Session
	sender  EmbedSender
}

func NewDiscord(token, channelID string) *Discord {
	return &Discord{token: token, channelID: channelID}
}

// NewDiscordWithSender uses an already connected sender; permission is
// granted from the start.
func NewDiscordWithSender(sender EmbedSender, channelID string) *Discord {
	return &Discord{channelID: channelID, sender: sender}
}

func (d *Discord) PermissionGranted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sender != nil
}

// RequestPermission opens the bot session.
func (d *Discord) RequestPermission(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sender != nil {
		return true, nil
	}
	if d.token == "" || d.channelID == "" {
		return false, errors.New("notify: discord token and channel are required")
	}

	s, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return false, fmt.Errorf("notify: discord session: %w", err)
	}
	if err := s.Open(); err != nil {
		return false, fmt.Errorf("notify: discord open: %w", err)
	}
	d.session, d.sender = s, s
	appLog.Info("discord notifications enabled", "channel", d.channelID)
	return true, nil
}

func (d *Discord) Notify(ctx context.Context, n Notification) error {
	d.mu.Lock()
	sender := d.sender
	d.mu.Unlock()
	if sender == nil {
		return ErrPermissionDenied
	}

	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Body,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: n.Tag},
	}
	if _, err := sender.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}

// Close closes the bot session if this Discord opened one.
func (d *Discord) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session, d.sender = nil, nil
	return err
}
