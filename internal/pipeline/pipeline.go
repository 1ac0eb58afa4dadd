// Package pipeline is the orchestration core: it turns one inbound chat
// message into a moderated, rate-limited, persona-driven reaction, and
// executes the actions emitted by the show-flow scheduler, the highlight
// detector and reward redemptions.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"tsubaki/internal/action"
	"tsubaki/internal/ai"
	"tsubaki/internal/emotion"
	"tsubaki/internal/metrics"
	"tsubaki/internal/moderation"
	"tsubaki/internal/persona"
	"tsubaki/internal/ratelimit"
)

// ReplyMaxLength caps outbound replies before they reach the throttler.
const ReplyMaxLength = 300

// Message is one inbound chat event, platform-agnostic.
type Message struct {
	Platform   string // "twitch", "discord"
	Channel    string
	User       string // display name, used in the prompt
	ExternalID string // platform user id; falls back to User when empty
	Text       string
}

// SettingsStore supplies the latest settings snapshot per call; there is no
// caching between messages.
type SettingsStore interface {
	AllSettings() (map[string]string, error)
	SetSetting(key, value string) error
}

// History persists users and conversation lines.
type History interface {
	UpsertUser(platform, externalID, displayName, avatarURL string) (string, error)
	SaveMessage(userID, role, content string) error
}

// SceneControl is the scene-service slice the dispatcher needs.
type SceneControl interface {
	SetScene(name string) error
	TriggerHotkey(name string) error
}

// Pipeline wires the stages together. All fields must be set except Say,
// History and the controls, which degrade to no-ops when nil.
type Pipeline struct {
	Settings SettingsStore
	History  History
	Provider ai.Provider
	Scenes   SceneControl
	Avatar   emotion.AvatarControl
	Limiter  *ratelimit.Limiter

	// Say delivers dispatcher "say" actions to the primary chat channel.
	Say func(text string)

	// expressionDelay overrides the avatar reset delay in tests.
	expressionDelay time.Duration
}

// HandleMessage runs the full reaction flow for one inbound message. Policy
// denials drop silently; external failures are logged and drop the message;
// later messages are unaffected either way.
func (p *Pipeline) HandleMessage(ctx context.Context, msg Message, reply func(text string)) {
	metrics.ChatMessages.WithLabelValues(msg.Platform).Inc()

	settings, err := p.Settings.AllSettings()
	if err != nil {
		log.Println("[ERR] Settings read failed, dropping message:", err)
		return
	}

	key := fmt.Sprintf("%s:%s:%s", msg.Platform, msg.Channel, msg.User)
	if !p.Limiter.Allow(key, time.Now()) {
		metrics.PipelineDrops.WithLabelValues("rate_limit").Inc()
		return
	}

	verdict := moderation.Evaluate(msg.Text, moderation.PolicyFromSettings(settings))
	if !verdict.Allowed {
		metrics.PipelineDrops.WithLabelValues("moderation").Inc()
		return
	}

	if p.Provider == nil {
		metrics.PipelineDrops.WithLabelValues("generation").Inc()
		return
	}

	active := persona.NewResolver(settings).Resolve(settings[persona.CurrentKey])

	userID := p.recordInbound(msg, verdict.Sanitized)

	prompt := fmt.Sprintf("%s: %s", msg.User, verdict.Sanitized)
	replyText, err := ai.Chat(ctx, p.Provider, prompt, active.SystemPrompt, safetyFor(active.ProfanityLevel))
	if err != nil {
		metrics.PipelineDrops.WithLabelValues("generation").Inc()
		log.Println("[ERR] Generation failed, dropping message:", err)
		return
	}
	if len(replyText) > ReplyMaxLength {
		replyText = replyText[:ReplyMaxLength]
	}

	if p.History != nil {
		bestEffort("save reply", func() error {
			return p.History.SaveMessage(userID, "assistant", replyText)
		})
	}

	if p.Avatar != nil {
		delay := p.expressionDelay
		if delay <= 0 {
			delay = 1200 * time.Millisecond
		}
		emotion.TriggerWithDelay(p.Avatar, emotion.Classify(replyText), settings, delay)
	}

	reply(replyText)
	metrics.ChatReplies.WithLabelValues(msg.Platform).Inc()
}

// recordInbound persists the user row and their line; failures are logged
// and leave the pipeline running with an empty user id.
func (p *Pipeline) recordInbound(msg Message, sanitized string) string {
	if p.History == nil {
		return ""
	}
	externalID := msg.ExternalID
	if externalID == "" {
		externalID = msg.User
	}
	userID, err := p.History.UpsertUser(msg.Platform, externalID, msg.User, "")
	if err != nil {
		log.Println("[WARN] User upsert failed:", err)
		return ""
	}
	bestEffort("save message", func() error {
		return p.History.SaveMessage(userID, "user", sanitized)
	})
	return userID
}

// ExecuteAction dispatches one action to its side effect. It is the common
// sink for the scheduler, the highlight detector and reward redemptions.
// Unknown kinds are ignored.
func (p *Pipeline) ExecuteAction(ctx context.Context, a action.Action) error {
	switch a.Kind {
	case action.KindScene:
		if p.Scenes != nil {
			return p.Scenes.SetScene(a.Value)
		}
	case action.KindHotkey:
		if p.Scenes != nil {
			return p.Scenes.TriggerHotkey(a.Value)
		}
	case action.KindExpression:
		if p.Avatar != nil {
			p.triggerExpression(a.Value)
		}
	case action.KindPersona:
		return p.Settings.SetSetting(persona.CurrentKey, a.Value)
	case action.KindSay:
		if p.Say != nil {
			p.Say(a.Value)
		}
	}
	return nil
}

// triggerExpression accepts either an emotion name (mapped through the
// emotion table and auto-reset) or a raw avatar parameter name.
func (p *Pipeline) triggerExpression(value string) {
	settings, err := p.Settings.AllSettings()
	if err != nil {
		settings = nil
	}
	delay := p.expressionDelay
	if delay <= 0 {
		delay = 1200 * time.Millisecond
	}
	switch emotion.Emotion(value) {
	case emotion.Happy, emotion.Sad, emotion.Angry, emotion.Surprised, emotion.Neutral:
		emotion.TriggerWithDelay(p.Avatar, emotion.Emotion(value), settings, delay)
	default:
		bestEffort("set expression", func() error {
			return p.Avatar.SetParameter(value, 1.0)
		})
	}
}

func safetyFor(level persona.ProfanityLevel) ai.SafetyLevel {
	switch level {
	case persona.ProfanityLow:
		return ai.SafetyStrict
	case persona.ProfanityHigh:
		return ai.SafetyRelaxed
	}
	return ai.SafetyDefault
}

// bestEffort runs a side effect whose failure must never propagate; the
// error is logged and dropped. This is the single place that policy lives.
func bestEffort(op string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("[WARN] Best-effort %s failed: %v", op, err)
	}
}
