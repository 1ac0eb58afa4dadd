// Package vts drives the avatar-control service (VTube Studio public API):
// token-based plugin authentication and expression parameter injection.
// Parameter writes are best-effort no-ops while the socket is down.
package vts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"tsubaki/pkg/reconnws"
)

// TokenStore persists the plugin auth token across restarts. Implemented by
// the settings store.
type TokenStore interface {
	Token() (string, error)
	SaveToken(token string) error
}

// Config identifies the plugin to VTube Studio.
type Config struct {
	Host         string
	Port         int
	PluginName   string
	PluginAuthor string
	PluginIcon   string
}

type envelope struct {
	APIName     string          `json:"apiName"`
	APIVersion  string          `json:"apiVersion"`
	RequestID   string          `json:"requestID"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Client is the avatar-control handle.
type Client struct {
	cfg    Config
	tokens TokenStore
	mgr    *reconnws.Manager
}

// New builds a client; tokens must not be nil.
func New(cfg Config, tokens TokenStore) *Client {
	c := &Client{cfg: cfg, tokens: tokens}
	c.mgr = reconnws.New(reconnws.Config{
		Name:      "vts",
		URL:       fmt.Sprintf("ws://%s:%d", cfg.Host, cfg.Port),
		Handshake: c.authenticate,
	})
	return c
}

// Connect starts the session; an error means VTube Studio is offline right
// now but the retry loop is already running.
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

// SetParameter injects one expression parameter value.
func (c *Client) SetParameter(name string, weight float64) error {
	data, _ := json.Marshal(map[string]any{
		"parameterValues": []map[string]any{{"id": name, "value": weight}},
	})
	c.send("InjectParameterDataRequest", data)
	return nil
}

func (c *Client) send(messageType string, data json.RawMessage) {
	payload, _ := json.Marshal(envelope{
		APIName:     "VTubeStudioPublicAPI",
		APIVersion:  "1.0",
		RequestID:   uuid.NewString(),
		MessageType: messageType,
		Data:        data,
	})
	c.mgr.Send(payload)
}

// authenticate runs the VTS token dance on a fresh socket: request a token
// when none is stored yet, persist it, then authenticate the session.
func (c *Client) authenticate(ctx context.Context, conn reconnws.Conn) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}

	if token == "" {
		token, err = c.requestToken(conn)
		if err != nil {
			return err
		}
		// Persist so restarts skip the user-facing permission popup. A
		// failed save still lets this session proceed.
		if err := c.tokens.SaveToken(token); err != nil {
			log.Println("[WARN] Could not persist VTS token:", err)
		}
	}

	authData, _ := json.Marshal(map[string]any{
		"pluginName":          c.cfg.PluginName,
		"pluginDeveloper":     c.cfg.PluginAuthor,
		"authenticationToken": token,
	})
	resp, err := c.roundTrip(conn, "AuthenticationRequest", authData, "AuthenticationResponse")
	if err != nil {
		return err
	}
	var result struct {
		Authenticated bool   `json:"authenticated"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("parse auth response: %w", err)
	}
	if !result.Authenticated {
		return fmt.Errorf("authentication rejected: %s", result.Reason)
	}
	return nil
}

func (c *Client) requestToken(conn reconnws.Conn) (string, error) {
	reqData, _ := json.Marshal(map[string]any{
		"pluginName":      c.cfg.PluginName,
		"pluginDeveloper": c.cfg.PluginAuthor,
		"pluginIcon":      c.cfg.PluginIcon,
	})
	resp, err := c.roundTrip(conn, "AuthenticationTokenRequest", reqData, "AuthenticationTokenResponse")
	if err != nil {
		return "", err
	}
	var result struct {
		AuthenticationToken string `json:"authenticationToken"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if result.AuthenticationToken == "" {
		return "", fmt.Errorf("empty token in response")
	}
	return result.AuthenticationToken, nil
}

// roundTrip writes one request and reads frames until the wanted response
// type arrives. An APIError frame fails the round trip.
func (c *Client) roundTrip(conn reconnws.Conn, messageType string, data json.RawMessage, wantType string) (json.RawMessage, error) {
	payload, _ := json.Marshal(envelope{
		APIName:     "VTubeStudioPublicAPI",
		APIVersion:  "1.0",
		RequestID:   uuid.NewString(),
		MessageType: messageType,
		Data:        data,
	})
	if err := conn.WriteMessage(1, payload); err != nil {
		return nil, fmt.Errorf("send %s: %w", messageType, err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", wantType, err)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("parse frame: %w", err)
		}
		switch env.MessageType {
		case wantType:
			return env.Data, nil
		case "APIError":
			return nil, fmt.Errorf("api error: %s", string(env.Data))
		}
		// Unrelated event frames are skipped.
	}
}
