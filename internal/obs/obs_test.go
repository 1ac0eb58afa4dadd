package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

// scriptedConn feeds queued frames to reads and records writes.
type scriptedConn struct {
	inbound [][]byte
	writes  [][]byte
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	if len(c.inbound) == 0 {
		return 0, nil, context.DeadlineExceeded
	}
	next := c.inbound[0]
	c.inbound = c.inbound[1:]
	return 1, next, nil
}

func (c *scriptedConn) WriteMessage(_ int, data []byte) error {
	c.writes = append(c.writes, data)
	return nil
}

func (c *scriptedConn) WriteControl(int, []byte, time.Time) error { return nil }
func (c *scriptedConn) Close() error                              { return nil }

func frame(op int, d string) []byte {
	b, _ := json.Marshal(map[string]any{"op": op, "d": json.RawMessage(d)})
	return b
}

func TestHandshakeWithoutAuth(t *testing.T) {
	conn := &scriptedConn{inbound: [][]byte{
		frame(opHello, `{"rpcVersion":1}`),
		frame(opIdentified, `{"negotiatedRpcVersion":1}`),
	}}

	if err := identifyHandshake("")(context.Background(), conn); err != nil {
		t.Fatal(err)
	}
	if len(conn.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(conn.writes))
	}
	var sent struct {
		Op int `json:"op"`
		D  struct {
			RPCVersion     int    `json:"rpcVersion"`
			Authentication string `json:"authentication"`
		} `json:"d"`
	}
	if err := json.Unmarshal(conn.writes[0], &sent); err != nil {
		t.Fatal(err)
	}
	if sent.Op != opIdentify || sent.D.RPCVersion != 1 {
		t.Fatalf("identify frame = %s", conn.writes[0])
	}
	if sent.D.Authentication != "" {
		t.Fatalf("auth sent without a challenge")
	}
}

func TestHandshakeAnswersChallenge(t *testing.T) {
	conn := &scriptedConn{inbound: [][]byte{
		frame(opHello, `{"rpcVersion":1,"authentication":{"challenge":"chal123","salt":"salt456"}}`),
		frame(opIdentified, `{"negotiatedRpcVersion":1}`),
	}}

	if err := identifyHandshake("hunter2")(context.Background(), conn); err != nil {
		t.Fatal(err)
	}

	var sent struct {
		D struct {
			Authentication string `json:"authentication"`
		} `json:"d"`
	}
	if err := json.Unmarshal(conn.writes[0], &sent); err != nil {
		t.Fatal(err)
	}

	secret := sha256.Sum256([]byte("hunter2" + "salt456"))
	auth := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(secret[:]) + "chal123"))
	want := base64.StdEncoding.EncodeToString(auth[:])
	if sent.D.Authentication != want {
		t.Fatalf("auth = %q, want %q", sent.D.Authentication, want)
	}
}

func TestHandshakeRejectsUnexpectedFrame(t *testing.T) {
	conn := &scriptedConn{inbound: [][]byte{frame(opRequest, `{}`)}}
	if err := identifyHandshake("")(context.Background(), conn); err == nil {
		t.Fatalf("expected error for out-of-order frame")
	}
}

func TestCallsAreNoOpsWhileDisconnected(t *testing.T) {
	c := New("localhost", 4455, "")
	// Never connected: all calls must be silent no-ops, not errors.
	if err := c.SetScene("BRB"); err != nil {
		t.Fatal(err)
	}
	if err := c.TriggerHotkey("ReplayBuffer.Save"); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateMarker("spike"); err != nil {
		t.Fatal(err)
	}
}
