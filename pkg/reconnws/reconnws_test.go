package reconnws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn blocks reads until failRead is called, and records writes.
type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	readErr chan error
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{readErr: make(chan error, 1)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	err := <-f.readErr
	f.readErr <- err // stay failed for subsequent reads
	return 0, nil, err
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		select {
		case f.readErr <- errors.New("closed"):
		default:
		}
	}
	return nil
}

func (f *fakeConn) failRead() {
	select {
	case f.readErr <- errors.New("peer went away"):
	default:
	}
}

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// scriptedDialer hands out conns (or errors) in order, then repeats the last.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	calls int
}

func (d *scriptedDialer) dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i >= len(d.conns) {
		i = len(d.conns) - 1
	}
	return d.conns[i], nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", m.State(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func testConfig(d *scriptedDialer) Config {
	return Config{
		Name:              "test",
		URL:               "ws://unused",
		Dial:              d.dial,
		InitialBackoff:    2 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	}
}

func TestConnectAndSend(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{conns: []*fakeConn{conn}}
	m := New(testConfig(d))
	defer m.Disconnect()

	// Sends before connecting are silent no-ops.
	m.Send([]byte("early"))

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, m, Ready)

	m.Send([]byte("hello"))
	if conn.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", conn.writeCount())
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	d := &scriptedDialer{conns: []*fakeConn{conn1, conn2}}
	m := New(testConfig(d))
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, m, Ready)

	conn1.failRead()
	deadline := time.Now().Add(5 * time.Second)
	for d.dialCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("no redial after drop (dials=%d)", d.dialCount())
		}
		time.Sleep(2 * time.Millisecond)
	}
	waitState(t, m, Ready) // back without caller intervention

	// Sends land on the fresh socket.
	m.Send([]byte("after"))
	if conn2.writeCount() != 1 {
		t.Fatalf("conn2 writes = %d, want 1", conn2.writeCount())
	}
}

func TestInitialFailureArmsRetryLoop(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{conns: []*fakeConn{conn}, errs: []error{errors.New("refused"), nil}}
	m := New(testConfig(d))
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err == nil {
		t.Fatalf("first connect should surface the dial error")
	}
	// The background loop still brings the session up.
	waitState(t, m, Ready)
}

func TestHandshakeRuns(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{conns: []*fakeConn{conn}}
	cfg := testConfig(d)
	handshook := false
	cfg.Handshake = func(_ context.Context, c Conn) error {
		handshook = true
		return c.WriteMessage(1, []byte("auth"))
	}
	m := New(cfg)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, m, Ready)
	if !handshook || conn.writeCount() != 1 {
		t.Fatalf("handshake not run (writes=%d)", conn.writeCount())
	}
}

func TestDisconnectStopsRetrying(t *testing.T) {
	d := &scriptedDialer{errs: []error{errors.New("down")}, conns: []*fakeConn{nil}}
	// Every dial fails.
	failing := func(context.Context, string) (Conn, error) {
		d.mu.Lock()
		d.calls++
		d.mu.Unlock()
		return nil, errors.New("down")
	}
	cfg := testConfig(d)
	cfg.Dial = failing
	m := New(cfg)

	_ = m.Connect(context.Background())
	time.Sleep(20 * time.Millisecond)
	m.Disconnect()
	waitState(t, m, Disconnected)

	settled := d.dialCount()
	time.Sleep(30 * time.Millisecond)
	if d.dialCount() != settled {
		t.Fatalf("dials continued after Disconnect: %d -> %d", settled, d.dialCount())
	}
}

// overlapConn counts writes that were in flight at the same time, which is
// the one thing a gorilla conn does not tolerate.
type overlapConn struct {
	done     chan struct{}
	inFlight int32
	overlaps int32
}

func (c *overlapConn) ReadMessage() (int, []byte, error) {
	<-c.done
	return 0, nil, errors.New("closed")
}

func (c *overlapConn) WriteMessage(_ int, _ []byte) error {
	if atomic.AddInt32(&c.inFlight, 1) > 1 {
		atomic.AddInt32(&c.overlaps, 1)
	}
	time.Sleep(time.Microsecond)
	atomic.AddInt32(&c.inFlight, -1)
	return nil
}

func (c *overlapConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *overlapConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	conn := &overlapConn{done: make(chan struct{})}
	cfg := testConfig(&scriptedDialer{})
	cfg.Dial = func(context.Context, string) (Conn, error) { return conn, nil }
	cfg.HeartbeatInterval = time.Millisecond
	cfg.Heartbeat = func(c Conn) error { return c.WriteMessage(1, []byte("ping")) }
	m := New(cfg)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, m, Ready)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m.Send([]byte("payload"))
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&conn.overlaps); n != 0 {
		t.Fatalf("observed %d overlapping WriteMessage calls", n)
	}
}

func TestMaxAttemptsGivesUp(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	cfg := Config{
		Name:           "test",
		URL:            "ws://unused",
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		MaxAttempts:    3,
		Dial: func(context.Context, string) (Conn, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil, errors.New("down")
		},
	}
	m := New(cfg)
	defer m.Disconnect()

	_ = m.Connect(context.Background())
	waitState(t, m, Disconnected)

	mu.Lock()
	got := calls
	mu.Unlock()
	// Initial synchronous attempt plus MaxAttempts retries.
	if got != 4 {
		t.Fatalf("dial calls = %d, want 4", got)
	}
}
