// Package emotion turns generated reply text into a discrete emotion and
// drives the matching avatar expression parameter.
package emotion

import (
	"regexp"
	"strings"
	"time"
)

// Emotion is a discrete avatar mood.
type Emotion string

const (
	Happy     Emotion = "happy"
	Sad       Emotion = "sad"
	Angry     Emotion = "angry"
	Surprised Emotion = "surprised"
	Neutral   Emotion = "neutral"
)

// AvatarControl is the slice of the avatar-control client the trigger needs.
type AvatarControl interface {
	SetParameter(name string, weight float64) error
}

var (
	happyWords     = regexp.MustCompile(`\b(gg|lol|haha|awesome|nice|great|love)\b`)
	sadWords       = regexp.MustCompile(`\b(sad|unfair|bad|cry)\b`)
	angryWords     = regexp.MustCompile(`\b(angry|mad|wtf|rage)\b`)
	surprisedWords = regexp.MustCompile(`\b(what|omg|wow)\b`)
)

// Classify is a keyword classifier over the lowercased text, checked in
// fixed priority order; the first bucket that matches wins.
func Classify(text string) Emotion {
	l := strings.ToLower(text)
	switch {
	case happyWords.MatchString(l):
		return Happy
	case sadWords.MatchString(l):
		return Sad
	case angryWords.MatchString(l):
		return Angry
	case surprisedWords.MatchString(l):
		return Surprised
	default:
		return Neutral
	}
}

// Mapping names the avatar parameter and weight for one emotion.
type Mapping struct {
	Parameter string
	Weight    float64
}

var defaultMappings = map[Emotion]Mapping{
	Happy:     {Parameter: "Smile", Weight: 0.9},
	Sad:       {Parameter: "Sad", Weight: 0.8},
	Angry:     {Parameter: "Angry", Weight: 0.8},
	Surprised: {Parameter: "Surprised", Weight: 0.9},
	Neutral:   {Parameter: "Neutral", Weight: 0.5},
}

// resetDelay is how long an expression stays up before drifting back to 0.
const resetDelay = 1200 * time.Millisecond

// Trigger sets the expression parameter for e and schedules the reset to 0.
// The settings snapshot may override the parameter name per emotion via
// "emotion.<name>" keys (weight fixed at 0.9 for overrides). Both the set
// and the delayed reset are best-effort; errors are dropped on the floor.
func Trigger(avatar AvatarControl, e Emotion, settings map[string]string) {
	TriggerWithDelay(avatar, e, settings, resetDelay)
}

// TriggerWithDelay is Trigger with an explicit reset delay, split out so
// tests don't have to wait 1.2 seconds.
func TriggerWithDelay(avatar AvatarControl, e Emotion, settings map[string]string, delay time.Duration) {
	m, ok := defaultMappings[e]
	if !ok {
		m = defaultMappings[Neutral]
	}
	if custom := settings["emotion."+string(e)]; custom != "" {
		m = Mapping{Parameter: custom, Weight: 0.9}
	}

	_ = avatar.SetParameter(m.Parameter, m.Weight)
	time.AfterFunc(delay, func() {
		_ = avatar.SetParameter(m.Parameter, 0.0)
	})
}
