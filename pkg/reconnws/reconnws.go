// Package reconnws maintains a long-lived websocket session to an external
// control service: dial, authenticate, heartbeat, and reconnect with capped
// exponential backoff when the peer drops.
//
// Typical usage:
//
//	m := reconnws.New(reconnws.Config{
//	    Name: "obs",
//	    URL:  "ws://localhost:4455",
//	    Handshake: identify,
//	})
//	if err := m.Connect(ctx); err != nil {
//	    log.Println("[WARN] obs offline, retrying in background:", err)
//	}
//	m.Send(payload) // silent no-op until the session is ready
//
// Outbound sends while the session is not ready are no-ops by design, so
// callers never have to check connection state first.
package reconnws

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the session lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// ErrClosed is returned by Connect after Disconnect has been called.
var ErrClosed = errors.New("reconnws: session closed")

// Conn is the minimal websocket surface the manager drives. Satisfied by
// *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a Conn for the configured URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Config describes one managed session.
type Config struct {
	Name string // used in log lines
	URL  string

	// Dial opens the socket; defaults to gorilla's default dialer.
	Dial Dialer

	// Handshake authenticates on a fresh socket before the session is
	// considered ready. May read and write on the conn. Nil means the open
	// socket is ready as-is.
	Handshake func(ctx context.Context, c Conn) error

	// OnMessage receives inbound frames while ready. Optional.
	OnMessage func(messageType int, data []byte)

	// OnReady fires after every successful (re)connect. Optional.
	OnReady func()

	// Heartbeat sends one liveness probe. Defaults to a websocket ping
	// control frame. Heartbeat failures are ignored: only a read error on
	// the socket triggers reconnection.
	Heartbeat func(c Conn) error

	HeartbeatInterval time.Duration // default 10s
	InitialBackoff    time.Duration // default 1s
	MaxBackoff        time.Duration // default 15s
	MaxAttempts       int           // consecutive failed attempts before giving up; 0 = retry forever
}

// Manager owns one live socket. All state transitions are serialized through
// its mutex; there is never more than one connect attempt in flight.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	state  State
	conn   Conn
	closed bool
	cancel context.CancelFunc

	// writeMu serializes data and heartbeat writes. gorilla conns allow
	// only one concurrent writer; the throttle drain, PONG replies and
	// expression resets all call Send from their own goroutines.
	writeMu sync.Mutex
}

// New creates a manager in the Disconnected state.
func New(cfg Config) *Manager {
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, url string) (Conn, error) {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Second
	}
	if cfg.Heartbeat == nil {
		cfg.Heartbeat = func(c Conn) error {
			return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
	return &Manager{cfg: cfg}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect performs the first connection attempt synchronously. On failure
// the error is returned so startup can log it, but the retry loop is still
// armed in the background; the caller does not need to retry.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Disconnected {
		m.mu.Unlock()
		return nil
	}
	sctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = Connecting
	m.mu.Unlock()

	if err := m.establish(sctx); err != nil {
		go m.reconnectLoop(sctx)
		return err
	}
	return nil
}

// Disconnect tears the session down for good: heartbeat and reconnect loops
// stop, the socket closes, and the state returns to Disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.state = Disconnected
	conn := m.conn
	m.conn = nil
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// Send writes a text frame if the session is ready, and silently does
// nothing otherwise.
func (m *Manager) Send(data []byte) {
	m.mu.Lock()
	conn := m.conn
	ready := m.state == Ready
	m.mu.Unlock()
	if !ready || conn == nil {
		return
	}
	m.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		log.Printf("[WARN] %s: send failed: %v", m.cfg.Name, err)
	}
}

// establish runs one dial+handshake attempt and, on success, starts the
// read and heartbeat loops for the new socket.
func (m *Manager) establish(ctx context.Context) error {
	m.setState(Connecting)
	conn, err := m.cfg.Dial(ctx, m.cfg.URL)
	if err != nil {
		return err
	}

	if m.cfg.Handshake != nil {
		m.setState(Authenticating)
		if err := m.cfg.Handshake(ctx, conn); err != nil {
			conn.Close()
			return err
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	m.conn = conn
	m.state = Ready
	m.mu.Unlock()

	log.Printf("[INFO] %s: connected", m.cfg.Name)
	if m.cfg.OnReady != nil {
		m.cfg.OnReady()
	}
	go m.readLoop(ctx, conn)
	go m.heartbeatLoop(ctx, conn)
	return nil
}

// readLoop pumps inbound frames until the socket errors, then hands the
// session to the reconnect loop. Only read errors trigger reconnection.
func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if m.cfg.OnMessage != nil {
			m.cfg.OnMessage(msgType, data)
		}
	}

	m.mu.Lock()
	if m.closed || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = Reconnecting
	m.mu.Unlock()
	conn.Close()

	log.Printf("[WARN] %s: connection lost, reconnecting", m.cfg.Name)
	m.reconnectLoop(ctx)
}

// heartbeatLoop pings the peer while this conn is current. Errors are
// swallowed: a dead heartbeat is not a failure signal in this design.
func (m *Manager) heartbeatLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			current := m.conn == conn && m.state == Ready
			m.mu.Unlock()
			if !current {
				return
			}
			m.writeMu.Lock()
			_ = m.cfg.Heartbeat(conn)
			m.writeMu.Unlock()
		}
	}
}

// reconnectLoop retries establish with doubling, capped, jittered delays.
// All failures inside the loop are retried, never surfaced.
func (m *Manager) reconnectLoop(ctx context.Context) {
	delay := m.cfg.InitialBackoff
	attempts := 0
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.state = Reconnecting
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(withJitter(delay)):
		}

		err := m.establish(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}

		attempts++
		if m.cfg.MaxAttempts > 0 && attempts >= m.cfg.MaxAttempts {
			log.Printf("[ERR] %s: giving up after %d attempts: %v", m.cfg.Name, attempts, err)
			m.setState(Disconnected)
			return
		}
		log.Printf("[WARN] %s: reconnect attempt %d failed: %v", m.cfg.Name, attempts, err)

		delay *= 2
		if delay > m.cfg.MaxBackoff {
			delay = m.cfg.MaxBackoff
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if !m.closed {
		m.state = s
	}
	m.mu.Unlock()
}

// withJitter spreads retries out by up to half the delay.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}
