// Package twitch is the chat transport: IRC over websocket against Twitch
// chat, with tag parsing, self-echo filtering and a per-second message
// counter feeding the highlight detector.
package twitch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tsubaki/pkg/reconnws"
)

// DefaultURL is the Twitch IRC websocket endpoint.
const DefaultURL = "wss://irc-ws.chat.twitch.tv:443"

// Message is one inbound chat line.
type Message struct {
	Channel string // without the leading '#'
	User    string // display name when tagged, else the IRC nick
	UserID  string
	Text    string
}

// Config describes one chat session.
type Config struct {
	URL      string // defaults to DefaultURL
	Username string
	Token    string // "oauth:..." chat token
	Channels []string

	// OnMessage receives every inbound chat line except our own echoes.
	OnMessage func(m Message)

	// OnChatCount receives the number of chat lines seen in each one-second
	// tick, including zero. Feeds the chat-spike detector.
	OnChatCount func(count int)
}

// Client is the chat connection. Reconnection, including re-auth and
// re-join, is handled by the session manager.
type Client struct {
	cfg Config
	mgr *reconnws.Manager

	mu    sync.Mutex
	count int

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a client; call Connect to go live.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	c := &Client{cfg: cfg, stop: make(chan struct{})}
	c.mgr = reconnws.New(reconnws.Config{
		Name:      "twitch",
		URL:       cfg.URL,
		Handshake: c.login,
		OnMessage: func(_ int, data []byte) { c.handleFrame(data) },
		// Twitch answers our IRC PINGs with PONG lines; the websocket-level
		// ping default would be dropped by their edge.
		Heartbeat: func(conn reconnws.Conn) error {
			return conn.WriteMessage(1, []byte("PING :tsubaki\r\n"))
		},
	})
	return c
}

// Connect starts the session and the per-second counter.
func (c *Client) Connect(ctx context.Context) error {
	go c.counterLoop()
	return c.mgr.Connect(ctx)
}

// Disconnect ends the session and stops the counter.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mgr.Disconnect()
}

// State exposes the session state for the health endpoint.
func (c *Client) State() reconnws.State {
	return c.mgr.State()
}

// Say sends one chat line to a channel. Callers are expected to route
// through the outbound throttler, not call this in a loop.
func (c *Client) Say(channel, text string) {
	channel = strings.TrimPrefix(channel, "#")
	c.mgr.Send([]byte(fmt.Sprintf("PRIVMSG #%s :%s\r\n", channel, text)))
}

// login authenticates and joins the configured channels on a fresh socket.
func (c *Client) login(ctx context.Context, conn reconnws.Conn) error {
	lines := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS " + c.cfg.Token,
		"NICK " + strings.ToLower(c.cfg.Username),
	}
	for _, line := range lines {
		if err := conn.WriteMessage(1, []byte(line+"\r\n")); err != nil {
			return fmt.Errorf("send %q: %w", strings.Fields(line)[0], err)
		}
	}

	// Wait for the 001 welcome; a NOTICE before it means bad credentials.
	deadline := time.Now().Add(15 * time.Second)
	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("login timed out")
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read welcome: %w", err)
		}
		welcome := false
		for _, line := range splitLines(data) {
			switch command(line) {
			case "001":
				welcome = true
			case "NOTICE":
				if strings.Contains(line, "authentication failed") {
					return fmt.Errorf("login rejected: %s", line)
				}
			}
		}
		if welcome {
			break
		}
	}

	for _, ch := range c.cfg.Channels {
		ch = strings.TrimPrefix(ch, "#")
		if err := conn.WriteMessage(1, []byte("JOIN #"+ch+"\r\n")); err != nil {
			return fmt.Errorf("join #%s: %w", ch, err)
		}
	}
	return nil
}

// handleFrame processes one websocket frame, which may hold several IRC
// lines.
func (c *Client) handleFrame(data []byte) {
	for _, line := range splitLines(data) {
		if strings.HasPrefix(line, "PING") {
			c.mgr.Send([]byte("PONG" + strings.TrimPrefix(line, "PING") + "\r\n"))
			continue
		}
		msg, ok := parseLine(line)
		if !ok {
			continue
		}
		if strings.EqualFold(nick(line), c.cfg.Username) {
			continue // our own echo
		}
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
		if c.cfg.OnMessage != nil {
			// Handlers block on generation calls; the read loop must keep
			// pumping PINGs and further chat lines meanwhile.
			go c.cfg.OnMessage(msg)
		}
	}
}

// counterLoop reports the chat line count once per second and resets it.
func (c *Client) counterLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			n := c.count
			c.count = 0
			c.mu.Unlock()
			if c.cfg.OnChatCount != nil {
				c.cfg.OnChatCount(n)
			}
		}
	}
}

func splitLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\r\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// command extracts the IRC command of a raw line, skipping tags and prefix.
func command(line string) string {
	rest := line
	if strings.HasPrefix(rest, "@") {
		if i := strings.Index(rest, " "); i >= 0 {
			rest = rest[i+1:]
		}
	}
	if strings.HasPrefix(rest, ":") {
		if i := strings.Index(rest, " "); i >= 0 {
			rest = rest[i+1:]
		}
	}
	if i := strings.Index(rest, " "); i >= 0 {
		return rest[:i]
	}
	return rest
}

// nick extracts the sender nick from the line prefix, or "".
func nick(line string) string {
	rest := line
	if strings.HasPrefix(rest, "@") {
		if i := strings.Index(rest, " "); i >= 0 {
			rest = rest[i+1:]
		} else {
			return ""
		}
	}
	if !strings.HasPrefix(rest, ":") {
		return ""
	}
	prefix := rest[1:]
	if i := strings.Index(prefix, " "); i >= 0 {
		prefix = prefix[:i]
	}
	if i := strings.Index(prefix, "!"); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

// parseLine extracts a chat Message from a PRIVMSG line.
func parseLine(line string) (Message, bool) {
	tags := map[string]string{}
	rest := line
	if strings.HasPrefix(rest, "@") {
		i := strings.Index(rest, " ")
		if i < 0 {
			return Message{}, false
		}
		for _, tag := range strings.Split(rest[1:i], ";") {
			if k, v, ok := strings.Cut(tag, "="); ok {
				tags[k] = unescapeTag(v)
			}
		}
		rest = rest[i+1:]
	}

	sender := ""
	if strings.HasPrefix(rest, ":") {
		i := strings.Index(rest, " ")
		if i < 0 {
			return Message{}, false
		}
		prefix := rest[1:i]
		if j := strings.Index(prefix, "!"); j >= 0 {
			sender = prefix[:j]
		} else {
			sender = prefix
		}
		rest = rest[i+1:]
	}

	if !strings.HasPrefix(rest, "PRIVMSG ") {
		return Message{}, false
	}
	rest = strings.TrimPrefix(rest, "PRIVMSG ")
	channel, trailing, ok := strings.Cut(rest, " :")
	if !ok {
		return Message{}, false
	}

	user := tags["display-name"]
	if user == "" {
		user = sender
	}
	return Message{
		Channel: strings.TrimPrefix(strings.TrimSpace(channel), "#"),
		User:    user,
		UserID:  tags["user-id"],
		Text:    trailing,
	}, true
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(v string) string {
	r := strings.NewReplacer(`\s`, " ", `\:`, ";", `\\`, `\`, `\r`, "\r", `\n`, "\n")
	return r.Replace(v)
}
