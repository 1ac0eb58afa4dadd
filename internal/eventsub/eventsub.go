// Package eventsub listens for channel point redemptions over the Twitch
// EventSub websocket and maps reward titles to configured actions.
package eventsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"tsubaki/internal/action"
	"tsubaki/internal/metrics"
	"tsubaki/pkg/reconnws"
	"tsubaki/pkg/retrylimit"
)

// DefaultURL is the public EventSub websocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

// DefaultHelixURL is the Helix API base used to create subscriptions.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// ActionsKey holds the reward-title to action map in settings, as a JSON
// object: {"Scene Swap": {"kind": "scene", "value": "Gaming"}}.
const ActionsKey = "redeem.actions"

// Redemption is one channel point redemption event.
type Redemption struct {
	RewardTitle string
	User        string
	Input       string
}

// Config describes the EventSub session.
type Config struct {
	URL           string // defaults to DefaultURL
	HelixURL      string // defaults to DefaultHelixURL
	ClientID      string
	Token         string // user access token with channel:read:redemptions
	BroadcasterID string

	// OnRedeem receives every redemption event.
	OnRedeem func(r Redemption)

	HTTPClient *http.Client
}

// Client is the EventSub session handle.
type Client struct {
	cfg Config
	mgr *reconnws.Manager
}

// New builds a client; call Connect to go live.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HelixURL == "" {
		cfg.HelixURL = DefaultHelixURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{cfg: cfg}
	c.mgr = reconnws.New(reconnws.Config{
		Name:      "eventsub",
		URL:       cfg.URL,
		OnMessage: func(_ int, data []byte) { c.handleFrame(data) },
	})
	return c
}

// Connect starts the session; the redemption subscription is created once
// the server sends its welcome.
func (c *Client) Connect(ctx context.Context) error {
	return c.mgr.Connect(ctx)
}

// Disconnect ends the session for good.
func (c *Client) Disconnect() {
	c.mgr.Disconnect()
}

// State exposes the session state for the health endpoint.
func (c *Client) State() reconnws.State {
	return c.mgr.State()
}

type frame struct {
	Metadata struct {
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Event struct {
			UserName  string `json:"user_name"`
			UserInput string `json:"user_input"`
			Reward    struct {
				Title string `json:"title"`
			} `json:"reward"`
		} `json:"event"`
	} `json:"payload"`
}

func (c *Client) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Println("[WARN] eventsub: bad frame:", err)
		return
	}
	switch f.Metadata.MessageType {
	case "session_welcome":
		// Subscribe off the read loop so a slow Helix call cannot stall
		// keepalive handling. The subscription must land before the server
		// times the session out, so transient Helix errors are retried.
		go func(sessionID string) {
			err := retrylimit.WithRetryMax(context.Background(), func() error {
				return c.subscribe(sessionID)
			}, nil, 5)
			if err != nil {
				log.Println("[ERR] eventsub: subscribe failed:", err)
			}
		}(f.Payload.Session.ID)
	case "session_reconnect":
		// The server is about to drop this socket. The manager redials the
		// base URL and gets a fresh welcome, so nothing to do here.
		log.Println("[INFO] eventsub: server requested reconnect")
	case "notification":
		if f.Metadata.SubscriptionType != "channel.channel_points_custom_reward_redemption.add" {
			return
		}
		metrics.RedeemEvents.Inc()
		if c.cfg.OnRedeem != nil {
			c.cfg.OnRedeem(Redemption{
				RewardTitle: f.Payload.Event.Reward.Title,
				User:        f.Payload.Event.UserName,
				Input:       f.Payload.Event.UserInput,
			})
		}
	}
}

// subscribe creates the redemption subscription bound to this websocket
// session.
func (c *Client) subscribe(sessionID string) error {
	body, _ := json.Marshal(map[string]any{
		"type":    "channel.channel_points_custom_reward_redemption.add",
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": c.cfg.BroadcasterID,
		},
		"transport": map[string]string{
			"method":     "websocket",
			"session_id": sessionID,
		},
	})
	req, err := http.NewRequest(http.MethodPost, c.cfg.HelixURL+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Client-Id", c.cfg.ClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("helix returned %d: %s", resp.StatusCode, msg)
		// Bad credentials never fix themselves; don't retry those.
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &retrylimit.FatalError{Err: err}
		}
		return err
	}
	return nil
}

// RewardTable maps reward titles to actions, case-insensitively.
type RewardTable struct {
	actions map[string]action.Action
}

// ParseRewardTable reads the configured title-action map from settings.
// Malformed entries disable the whole table rather than half-working.
func ParseRewardTable(settings map[string]string) (*RewardTable, error) {
	t := &RewardTable{actions: map[string]action.Action{}}
	raw := settings[ActionsKey]
	if raw == "" {
		return t, nil
	}
	var parsed map[string]action.Action
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ActionsKey, err)
	}
	for title, a := range parsed {
		t.actions[strings.ToLower(title)] = a
	}
	return t, nil
}

// Lookup resolves a reward title to its action.
func (t *RewardTable) Lookup(title string) (action.Action, bool) {
	a, ok := t.actions[strings.ToLower(title)]
	return a, ok
}
