// Package throttle serializes outbound chat replies so the bot stays under
// the platform's abuse-prevention limits. One queue per process, drained by
// a single worker at a fixed pace.
package throttle

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the conservative 1 msg/s pace recommended for Twitch
// verified-bot-less accounts.
const DefaultInterval = time.Second

// SendFunc delivers one reply to the platform.
type SendFunc func(channel, text string) error

type item struct {
	channel string
	text    string
}

// Queue is a FIFO of pending replies with an idempotently-started drain
// loop. A failed send is logged and skipped; the loop never aborts.
type Queue struct {
	mu      sync.Mutex
	items   []item
	sending bool

	ctx     context.Context
	send    SendFunc
	limiter *rate.Limiter
}

// New creates a queue pacing sends at one per interval. The context stops an
// in-flight drain on shutdown; queued items are simply dropped then.
func New(ctx context.Context, interval time.Duration, send SendFunc) *Queue {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Queue{
		ctx:     ctx,
		send:    send,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Enqueue appends a reply and starts the drain loop unless one is already
// running. Safe for concurrent use.
func (q *Queue) Enqueue(channel, text string) {
	q.mu.Lock()
	q.items = append(q.items, item{channel: channel, text: text})
	start := !q.sending
	if start {
		q.sending = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// Len reports the number of queued replies.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.sending = false
			q.mu.Unlock()
			return
		}
		next := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if err := q.limiter.Wait(q.ctx); err != nil {
			// Shutdown; drop the rest.
			q.mu.Lock()
			q.items = nil
			q.sending = false
			q.mu.Unlock()
			return
		}
		if err := q.send(next.channel, next.text); err != nil {
			log.Printf("[WARN] Dropping reply to %s: %v", next.channel, err)
		}
	}
}
