package twitch

import (
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Message
		ok   bool
	}{
		{
			name: "tagged privmsg",
			line: `@badge-info=;display-name=CoolViewer;user-id=1234 :coolviewer!coolviewer@coolviewer.tmi.twitch.tv PRIVMSG #tsubaki :hello there`,
			want: Message{Channel: "tsubaki", User: "CoolViewer", UserID: "1234", Text: "hello there"},
			ok:   true,
		},
		{
			name: "no tags falls back to nick",
			line: `:someone!someone@someone.tmi.twitch.tv PRIVMSG #chan :hi`,
			want: Message{Channel: "chan", User: "someone", Text: "hi"},
			ok:   true,
		},
		{
			name: "escaped display name",
			line: `@display-name=Cool\sViewer;user-id=9 :x!x@x.tmi.twitch.tv PRIVMSG #c :yo`,
			want: Message{Channel: "c", User: "Cool Viewer", UserID: "9", Text: "yo"},
			ok:   true,
		},
		{
			name: "message with colons",
			line: `:x!x@x.tmi.twitch.tv PRIVMSG #c :note: see https://example.com`,
			want: Message{Channel: "c", User: "x", Text: "note: see https://example.com"},
			ok:   true,
		},
		{
			name: "join is not a chat line",
			line: `:x!x@x.tmi.twitch.tv JOIN #c`,
			ok:   false,
		},
		{
			name: "server notice",
			line: `:tmi.twitch.tv NOTICE * :Improperly formatted auth`,
			ok:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseLine(tc.line)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestHandleFrameFiltersSelfEcho(t *testing.T) {
	seen := make(chan Message, 4)
	c := New(Config{
		Username:  "Tsubaki_Bot",
		OnMessage: func(m Message) { seen <- m },
	})

	frame := []byte(":tsubaki_bot!tsubaki_bot@tsubaki_bot.tmi.twitch.tv PRIVMSG #c :my own line\r\n" +
		":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #c :their line\r\n")
	c.handleFrame(frame)

	select {
	case m := <-seen:
		if m.Text != "their line" {
			t.Fatalf("seen = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message never dispatched")
	}
	select {
	case m := <-seen:
		t.Fatalf("own echo dispatched: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count != 1 {
		t.Fatalf("count = %d, want 1 (echo not counted)", c.count)
	}
}

func TestHandleFrameMultipleLinesPerFrame(t *testing.T) {
	seen := make(chan Message, 4)
	c := New(Config{Username: "bot", OnMessage: func(m Message) { seen <- m }})

	c.handleFrame([]byte(
		":a!a@a.tmi.twitch.tv PRIVMSG #c :one\r\n" +
			":b!b@b.tmi.twitch.tv PRIVMSG #c :two\r\n"))
	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d of 2 lines", i)
		}
	}
}

func TestHandleFrameDoesNotBlockOnSlowHandler(t *testing.T) {
	release := make(chan struct{})
	c := New(Config{
		Username:  "bot",
		OnMessage: func(Message) { <-release },
	})
	defer close(release)

	done := make(chan struct{})
	go func() {
		// Two lines whose handlers both block, like in-flight generations.
		c.handleFrame([]byte(
			":a!a@a.tmi.twitch.tv PRIVMSG #c :one\r\n" +
				":b!b@b.tmi.twitch.tv PRIVMSG #c :two\r\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("read path stalled behind a busy handler")
	}
}

func TestCommandAndNick(t *testing.T) {
	line := `@x=1 :nickname!user@host PRIVMSG #c :hi`
	if got := command(line); got != "PRIVMSG" {
		t.Fatalf("command = %q", got)
	}
	if got := nick(line); got != "nickname" {
		t.Fatalf("nick = %q", got)
	}
	if got := command(":tmi.twitch.tv 001 bot :Welcome, GLHF!"); got != "001" {
		t.Fatalf("welcome command = %q", got)
	}
}
