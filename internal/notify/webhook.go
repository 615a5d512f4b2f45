// Package notify posts admin alerts to a Discord-compatible webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/util"
)

// Alert levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ErrDisabled is returned by NewNotifier when no webhook is configured.
var ErrDisabled = errors.New("webhook notifications are disabled")

// Notifier turns auth failures and health changes into webhook alerts.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
	logger zerolog.Logger

	// Last probe outcome per server; alerts fire on changes only.
	healthy *xsync.MapOf[string, bool]
}

// NewNotifier creates a notifier and subscribes it to bus.
func NewNotifier(cfg *config.Config, bus *events.EventBus) (*Notifier, error) {
	notifyCfg := cfg.GetApplicationData().Notify
	if notifyCfg.WebhookURL == "" {
		return nil, ErrDisabled
	}

	n := &Notifier{
		cfg:     notifyCfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  util.ComponentLogger("notify"),
		healthy: xsync.NewMapOf[string, bool](),
	}

	if notifyCfg.OnAuthFailure {
		bus.Subscribe(events.EventAuthFailed, "notify.authFailed", n.onAuthFailed)
	}
	if notifyCfg.OnHealth {
		bus.Subscribe(events.EventHealthProbe, "notify.health", n.onHealth)
	}
	return n, nil
}

// Send posts one alert.
func (n *Notifier) Send(ctx context.Context, title, message, level string) error {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       levelColor(level),
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
				"footer": map[string]string{
					"text": fmt.Sprintf("%s %s", util.AppName, util.Version),
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	n.logger.Debug().Str("title", title).Msg("webhook notification sent")
	return nil
}

func levelColor(level string) int {
	switch level {
	case LevelError:
		return 0xFF0000
	case LevelWarning:
		return 0xFFAA00
	default:
		return 0x00FF00
	}
}

func (n *Notifier) onAuthFailed(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.SessionPayload)
	if !ok {
		return nil
	}
	return n.Send(ctx, "RCON authentication failed",
		fmt.Sprintf("Server **%s** (%s) rejected the configured password.", p.Server, p.Address),
		LevelError)
}

// onHealth alerts when a server becomes unhealthy and when it recovers.
// The first healthy probe of a server is silent.
func (n *Notifier) onHealth(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.HealthPayload)
	if !ok {
		return nil
	}

	previous, seen := n.healthy.LoadAndStore(p.Server, p.Healthy)
	if seen && previous == p.Healthy {
		return nil
	}

	switch {
	case !p.Healthy:
		return n.Send(ctx, "RCON server unreachable",
			fmt.Sprintf("Health probe for **%s** failed: %s", p.Server, p.Error),
			LevelWarning)
	case seen:
		return n.Send(ctx, "RCON server recovered",
			fmt.Sprintf("**%s** answers again (latency %s).", p.Server, p.Latency.Round(time.Millisecond)),
			LevelInfo)
	}
	return nil
}
