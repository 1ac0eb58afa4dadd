// Package obs drives the scene-control service over the obs-websocket v5
// protocol: program scene switches, hotkeys, and record markers. Every call
// is best-effort and a silent no-op while the socket is down.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tsubaki/pkg/reconnws"
)

// obs-websocket v5 opcodes.
const (
	opHello      = 0
	opIdentify   = 1
	opIdentified = 2
	opRequest    = 6
)

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
	RPCVersion int `json:"rpcVersion"`
}

// Client is the scene-control handle. Zero connection management is exposed
// beyond Connect/Disconnect; reconnection happens behind the scenes.
type Client struct {
	mgr *reconnws.Manager
}

// New builds a client for ws://host:port with the configured password.
func New(host string, port int, password string) *Client {
	c := &Client{}
	c.mgr = reconnws.New(reconnws.Config{
		Name:      "obs",
		URL:       fmt.Sprintf("ws://%s:%d", host, port),
		Handshake: identifyHandshake(password),
	})
	return c
}

// Connect starts the session; an error means OBS is offline right now but
// the retry loop is already running.
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

// SetScene switches the program scene.
func (c *Client) SetScene(name string) error {
	c.request("SetCurrentProgramScene", map[string]any{"sceneName": name})
	return nil
}

// TriggerHotkey fires an OBS hotkey by name.
func (c *Client) TriggerHotkey(name string) error {
	c.request("TriggerHotkeyByName", map[string]any{"hotkeyName": name})
	return nil
}

// CreateMarker drops a record marker; unsupported OBS versions just ignore
// the request.
func (c *Client) CreateMarker(label string) error {
	c.request("CreateRecordMarker", map[string]any{"markerName": label})
	return nil
}

func (c *Client) request(requestType string, data map[string]any) {
	d, _ := json.Marshal(map[string]any{
		"requestType": requestType,
		"requestId":   uuid.NewString(),
		"requestData": data,
	})
	payload, _ := json.Marshal(envelope{Op: opRequest, D: d})
	c.mgr.Send(payload)
}

// identifyHandshake performs Hello -> Identify -> Identified, answering the
// server's auth challenge when a password is required.
func identifyHandshake(password string) func(ctx context.Context, conn reconnws.Conn) error {
	return func(ctx context.Context, conn reconnws.Conn) error {
		var env envelope
		if err := readEnvelope(conn, &env); err != nil {
			return fmt.Errorf("read hello: %w", err)
		}
		if env.Op != opHello {
			return fmt.Errorf("expected hello, got op %d", env.Op)
		}
		var hello helloData
		if err := json.Unmarshal(env.D, &hello); err != nil {
			return fmt.Errorf("parse hello: %w", err)
		}

		identify := map[string]any{"rpcVersion": 1}
		if hello.Authentication != nil {
			identify["authentication"] = ChallengeResponse(password, hello.Authentication.Salt, hello.Authentication.Challenge)
		}
		d, _ := json.Marshal(identify)
		payload, _ := json.Marshal(envelope{Op: opIdentify, D: d})
		if err := conn.WriteMessage(1, payload); err != nil {
			return fmt.Errorf("send identify: %w", err)
		}

		deadline := time.Now().Add(10 * time.Second)
		for {
			if time.Now().After(deadline) {
				return fmt.Errorf("identify timed out")
			}
			if err := readEnvelope(conn, &env); err != nil {
				return fmt.Errorf("read identified: %w", err)
			}
			if env.Op == opIdentified {
				return nil
			}
		}
	}
}

func readEnvelope(conn reconnws.Conn, env *envelope) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, env)
}

// ChallengeResponse derives the obs-websocket auth string:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func ChallengeResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
