package ai

import (
	"context"
	"testing"
)

type scriptedProvider struct {
	got   []Message
	reply string
	err   error
}

func (s *scriptedProvider) Generate(_ context.Context, messages []Message) (string, error) {
	s.got = messages
	return s.reply, s.err
}

func TestChatBuildsMessages(t *testing.T) {
	p := &scriptedProvider{reply: "hi"}
	reply, err := Chat(context.Background(), p, "bob: hello", "You are Tsubaki.", SafetyDefault)
	if err != nil || reply != "hi" {
		t.Fatalf("reply=%q err=%v", reply, err)
	}
	if len(p.got) != 2 || p.got[0].Role != "system" || p.got[1].Content != "bob: hello" {
		t.Fatalf("messages = %+v", p.got)
	}
}

func TestChatSafetyHintAppended(t *testing.T) {
	p := &scriptedProvider{reply: "ok"}
	if _, err := Chat(context.Background(), p, "x", "Base prompt.", SafetyStrict); err != nil {
		t.Fatal(err)
	}
	sys := p.got[0].Content
	if sys == "Base prompt." || len(sys) <= len("Base prompt.") {
		t.Fatalf("safety hint missing: %q", sys)
	}
}

func TestChatNoSystemPrompt(t *testing.T) {
	p := &scriptedProvider{reply: "ok"}
	if _, err := Chat(context.Background(), p, "x", "", SafetyDefault); err != nil {
		t.Fatal(err)
	}
	if len(p.got) != 1 || p.got[0].Role != "user" {
		t.Fatalf("messages = %+v", p.got)
	}
}

func TestCleanReply(t *testing.T) {
	got := cleanReply("  <think>hmm</think> hello there ")
	if got != "hello there" {
		t.Fatalf("got %q", got)
	}
}
