package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Minimal session interface for executing a webhook.
type webhookSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts completed games and shared results to a Discord webhook.
// Posts run in the background; Close waits for the ones in flight.
type Discord struct {
	session   webhookSession
	webhookID string
	token     string
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewDiscord builds a sink from a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string, logger zerolog.Logger) (*Discord, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return newDiscord(session, id, token, logger), nil
}

func newDiscord(session webhookSession, id, token string, logger zerolog.Logger) *Discord {
	return &Discord{session: session, webhookID: id, token: token, log: logger}
}

// ParseWebhookURL extracts the webhook id and token.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("invalid webhook url: expected /api/webhooks/<id>/<token>")
}

func (d *Discord) Emit(ev Event) {
	content := discordMessage(ev)
	if content == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sendWithRetry(context.Background(), content); err != nil {
			d.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("discord: failed to post event")
		}
	}()
}

// Close waits for in-flight posts to finish.
func (d *Discord) Close() {
	d.wg.Wait()
}

func discordMessage(ev Event) string {
	switch ev.Type {
	case EventGameCompleted:
		return fmt.Sprintf("🗺️ A player finished %s with **%d** points (%d locations)", ev.Date, ev.TotalScore, ev.Completed)
	case EventShareRequested:
		if ev.Message != "" {
			return ev.Message
		}
		return fmt.Sprintf("Final score: %d", ev.TotalScore)
	}
	return ""
}

func (d *Discord) sendWithRetry(ctx context.Context, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
			Content: content,
		}, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
