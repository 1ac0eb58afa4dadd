// Package moderation decides whether an inbound chat line may enter the
// reaction pipeline. Evaluate is a pure function: no I/O, no clock, no state.
package moderation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonEmpty       Reason = "empty"
	ReasonTooLong     Reason = "too_long"
	ReasonTooManyCaps Reason = "too_many_caps"
	ReasonBlocklist   Reason = "blocklist"
	ReasonSlur        Reason = "slur_blocked"
	ReasonURL         Reason = "url_blocked"
)

// Policy is an immutable snapshot of the moderation settings, rebuilt from
// the settings store on every message so edits take effect immediately.
type Policy struct {
	Enabled        bool
	Blocklist      []string
	SlurList       []string
	MaxCapsPercent int
	MaxLength      int
	BlockURLs      bool
}

// Verdict is the outcome of Evaluate. Sanitized is set only when Allowed.
type Verdict struct {
	Allowed   bool
	Reason    Reason
	Sanitized string
}

// DefaultPolicy mirrors the shipped defaults: moderation on, no lists,
// 70% caps ceiling, 400 char limit, URLs allowed.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, MaxCapsPercent: 70, MaxLength: 400}
}

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// Evaluate runs the checks in fixed order and short-circuits on the first
// failure: empty, length, caps ratio, blocklist, URL, slur list.
func Evaluate(text string, p Policy) Verdict {
	if !p.Enabled {
		return Verdict{Allowed: true, Sanitized: strings.TrimSpace(text)}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Verdict{Reason: ReasonEmpty}
	}
	if len(trimmed) > p.MaxLength {
		return Verdict{Reason: ReasonTooLong}
	}

	var caps, letters int
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	// Denominator floored at 1 so all-symbol messages don't divide by zero.
	if letters == 0 {
		letters = 1
	}
	if caps*100 > p.MaxCapsPercent*letters {
		return Verdict{Reason: ReasonTooManyCaps}
	}

	lower := strings.ToLower(trimmed)
	if matchesAny(lower, p.Blocklist) {
		return Verdict{Reason: ReasonBlocklist}
	}
	if p.BlockURLs && urlPattern.MatchString(trimmed) {
		return Verdict{Reason: ReasonURL}
	}
	if matchesAny(lower, p.SlurList) {
		return Verdict{Reason: ReasonSlur}
	}

	return Verdict{Allowed: true, Sanitized: trimmed}
}

// matchesAny is a case-insensitive substring check. Empty list entries are
// skipped so a stray blank setting never blocks everything.
func matchesAny(lower string, list []string) bool {
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

// PolicyFromSettings builds a Policy from the flat settings map, falling back
// to defaults for absent or unparseable keys. Recognized keys:
//
//	moderation.enabled        "true" / "false"
//	moderation.blocklist      comma-separated
//	moderation.slurlist       comma-separated
//	moderation.max_caps_pct   integer 0..100
//	moderation.max_length     integer
//	moderation.block_urls     "true" / "false"
func PolicyFromSettings(settings map[string]string) Policy {
	p := DefaultPolicy()
	if v, ok := settings["moderation.enabled"]; ok {
		p.Enabled = v == "true"
	}
	if v, ok := settings["moderation.blocklist"]; ok {
		p.Blocklist = splitList(v)
	}
	if v, ok := settings["moderation.slurlist"]; ok {
		p.SlurList = splitList(v)
	}
	if v, ok := settings["moderation.max_caps_pct"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			p.MaxCapsPercent = n
		}
	}
	if v, ok := settings["moderation.max_length"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.MaxLength = n
		}
	}
	if v, ok := settings["moderation.block_urls"]; ok {
		p.BlockURLs = v == "true"
	}
	return p
}

func splitList(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
