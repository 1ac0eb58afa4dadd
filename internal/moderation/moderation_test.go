package moderation

import "testing"

func TestEvaluateOrder(t *testing.T) {
	base := Policy{
		Enabled:        true,
		Blocklist:      []string{"spam"},
		SlurList:       []string{"slurword"},
		MaxCapsPercent: 70,
		MaxLength:      400,
		BlockURLs:      true,
	}

	cases := []struct {
		name    string
		text    string
		policy  Policy
		allowed bool
		reason  Reason
	}{
		{"disabled allows anything", "AAAA spam https://x", Policy{}, true, ReasonNone},
		{"empty after trim", "   \t ", base, false, ReasonEmpty},
		{"too long", string(make([]byte, 401)), base, false, ReasonTooLong},
		{"all caps", "HELLO WORLD", base, false, ReasonTooManyCaps},
		{"caps under limit", "Hello world", base, true, ReasonNone},
		{"blocklist case-insensitive substring", "This is SPAMMY", base, false, ReasonBlocklist},
		{"url blocked", "look at https://example.com now", base, false, ReasonURL},
		{"url allowed when off", "look at https://example.com now", func() Policy { p := base; p.BlockURLs = false; return p }(), true, ReasonNone},
		{"slur blocked", "you Slurword", base, false, ReasonSlur},
		{"no letters no panic", "!!! ???", base, true, ReasonNone},
		{"clean passes", "good run today", base, true, ReasonNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(tc.text, tc.policy)
			if v.Allowed != tc.allowed {
				t.Fatalf("allowed = %v, want %v (reason=%q)", v.Allowed, tc.allowed, v.Reason)
			}
			if v.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", v.Reason, tc.reason)
			}
			if v.Allowed && tc.text != "" && v.Sanitized == "" && tc.reason == ReasonNone && tc.policy.Enabled {
				t.Fatalf("sanitized text missing on allow")
			}
		})
	}
}

func TestEvaluateBlocklistSkipsEmptyEntries(t *testing.T) {
	p := DefaultPolicy()
	p.Blocklist = []string{"", "bad"}
	if v := Evaluate("all fine here", p); !v.Allowed {
		t.Fatalf("empty blocklist entry blocked a clean message: %q", v.Reason)
	}
	if v := Evaluate("this is BAD", p); v.Allowed {
		t.Fatalf("expected blocklist denial")
	}
}

func TestEvaluateSanitizedIsTrimmed(t *testing.T) {
	v := Evaluate("  hi there  ", DefaultPolicy())
	if !v.Allowed || v.Sanitized != "hi there" {
		t.Fatalf("got %+v", v)
	}
}

func TestPolicyFromSettings(t *testing.T) {
	p := PolicyFromSettings(map[string]string{
		"moderation.enabled":      "true",
		"moderation.blocklist":    "spam, scam ,",
		"moderation.max_caps_pct": "50",
		"moderation.max_length":   "120",
		"moderation.block_urls":   "true",
	})
	if !p.Enabled || !p.BlockURLs {
		t.Fatalf("flags not parsed: %+v", p)
	}
	if len(p.Blocklist) != 2 || p.Blocklist[0] != "spam" || p.Blocklist[1] != "scam" {
		t.Fatalf("blocklist = %v", p.Blocklist)
	}
	if p.MaxCapsPercent != 50 || p.MaxLength != 120 {
		t.Fatalf("limits = %d %d", p.MaxCapsPercent, p.MaxLength)
	}

	// Garbage values fall back to defaults.
	p = PolicyFromSettings(map[string]string{"moderation.max_caps_pct": "nope", "moderation.max_length": "-3"})
	if p.MaxCapsPercent != 70 || p.MaxLength != 400 {
		t.Fatalf("defaults not kept: %+v", p)
	}
}
