// Package ai talks to the generation service producing persona replies. The
// concrete endpoint is any OpenAI-compatible chat completion API.
package ai

import (
	"context"
	"fmt"
	"time"

	"tsubaki/internal/metrics"
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a black-box generation backend.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// SafetyLevel hints how loose the reply language may be. Values map from
// the persona's profanity level.
type SafetyLevel string

const (
	SafetyStrict  SafetyLevel = "strict"
	SafetyDefault SafetyLevel = ""
	SafetyRelaxed SafetyLevel = "relaxed"
)

var safetyHints = map[SafetyLevel]string{
	SafetyStrict:  "Keep language family-friendly at all times.",
	SafetyRelaxed: "Mild profanity is acceptable; stay within platform rules.",
}

// Chat runs one generation call with an optional system prompt and safety
// hint, recording latency. One call per inbound message; never retried.
func Chat(ctx context.Context, p Provider, prompt, systemPrompt string, safety SafetyLevel) (string, error) {
	var messages []Message
	system := systemPrompt
	if hint, ok := safetyHints[safety]; ok {
		if system != "" {
			system += "\n" + hint
		} else {
			system = hint
		}
	}
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	start := time.Now()
	reply, err := p.Generate(ctx, messages)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return reply, nil
}
