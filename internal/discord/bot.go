// Package discord bridges a Discord text channel into the reaction flow.
// The persona reads and replies in one configured channel; everything else
// on the server is ignored.
package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"tsubaki/internal/throttle"
)

// MessageHandler receives one inbound channel message; reply delivers the
// persona's answer back to the same channel.
type MessageHandler func(ctx context.Context, channelID, user, userID, text string, reply func(text string))

// Bot is the Discord side of the bridge. Replies are paced through an
// outbound throttle queue, same as the chat transport.
type Bot struct {
	dg        *discordgo.Session
	channelID string
	interval  time.Duration
	handler   MessageHandler

	mu      sync.RWMutex
	queue   *throttle.Queue
	running bool
}

// New creates the bot. channelID may be empty, in which case every channel
// the bot can read is bridged. interval paces outbound replies.
func New(token, channelID string, interval time.Duration, handler MessageHandler) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	b := &Bot{dg: dg, channelID: channelID, interval: interval, handler: handler}

	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	return b, nil
}

// Run opens the gateway session and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.queue = throttle.New(ctx, b.interval, func(channel, text string) error {
		_, err := b.dg.ChannelMessageSend(channel, text)
		return err
	})
	b.mu.Unlock()

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	return b.dg.Close()
}

// Connected reports whether the gateway session is open.
func (b *Bot) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[INFO] Discord connected as %s#%s", r.User.Username, r.User.Discriminator)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if b.channelID != "" && m.ChannelID != b.channelID {
		return
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	channelID := m.ChannelID
	b.handler(context.Background(), channelID, m.Author.Username, m.Author.ID, text, func(text string) {
		b.enqueue(channelID, text)
	})
}

// enqueue hands a reply to the throttle queue. Before Run there is no queue
// and the reply is dropped; the gateway never delivers messages that early.
func (b *Bot) enqueue(channelID, text string) {
	b.mu.RLock()
	queue := b.queue
	b.mu.RUnlock()
	if queue == nil {
		log.Println("[WARN] Discord reply dropped: session not running")
		return
	}
	queue.Enqueue(channelID, text)
}
