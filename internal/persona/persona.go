// Package persona maps a persona id to the prompt, voice and tone the
// generation call runs with. Built-ins are compiled in; custom personas live
// in the settings store under the "persona.custom." key prefix.
package persona

import (
	"encoding/json"
	"strings"
)

// ProfanityLevel is a coarse safety hint passed to the generation provider.
type ProfanityLevel string

const (
	ProfanityLow    ProfanityLevel = "low"
	ProfanityMedium ProfanityLevel = "medium"
	ProfanityHigh   ProfanityLevel = "high"
)

// Persona holds everything the pipeline needs to speak in character.
type Persona struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	SystemPrompt   string         `json:"systemPrompt"`
	VoiceID        string         `json:"voiceId,omitempty"`
	ProfanityLevel ProfanityLevel `json:"profanityLevel,omitempty"`
}

// CustomKeyPrefix is the settings key prefix for user-defined personas; the
// id follows the prefix and the value is a Persona JSON blob.
const CustomKeyPrefix = "persona.custom."

// CurrentKey is the settings key naming the active persona id.
const CurrentKey = "persona.current"

var builtins = map[string]Persona{
	"default": {
		ID:             "default",
		Name:           "Tsubaki",
		SystemPrompt:   "You are Tsubaki, a witty, kind, slightly playful AI VTuber who engages respectfully, avoids harmful topics, and keeps things fun.",
		VoiceID:        "en-US-Neural2-F",
		ProfanityLevel: ProfanityMedium,
	},
	"evil": {
		ID:             "evil",
		Name:           "Evil Tsubaki",
		SystemPrompt:   "You are Evil Tsubaki, cheeky and mischievous yet safe-for-stream. Be dry, sarcastic, and playful without being offensive.",
		VoiceID:        "en-US-Neural2-E",
		ProfanityLevel: ProfanityLow,
	},
}

// Resolver answers persona lookups against the builtin table plus whatever
// custom entries the given settings snapshot carries.
type Resolver struct {
	custom map[string]Persona
}

// NewResolver parses custom personas out of a settings snapshot. Malformed
// entries are skipped; they never shadow builtins or other entries.
func NewResolver(settings map[string]string) *Resolver {
	r := &Resolver{custom: make(map[string]Persona)}
	for key, value := range settings {
		if !strings.HasPrefix(key, CustomKeyPrefix) {
			continue
		}
		id := strings.TrimPrefix(key, CustomKeyPrefix)
		if id == "" {
			continue
		}
		var p Persona
		if err := json.Unmarshal([]byte(value), &p); err != nil {
			continue
		}
		if p.SystemPrompt == "" {
			continue
		}
		p.ID = id
		if p.ProfanityLevel == "" {
			p.ProfanityLevel = ProfanityMedium
		}
		r.custom[id] = p
	}
	return r
}

// Resolve returns the persona for id, preferring custom entries, and falls
// back to the default persona for empty or unknown ids.
func (r *Resolver) Resolve(id string) Persona {
	if id != "" {
		if p, ok := r.custom[id]; ok {
			return p
		}
		if p, ok := builtins[id]; ok {
			return p
		}
	}
	return builtins["default"]
}

// IDs lists builtin plus custom persona ids, for the dashboard surface.
func (r *Resolver) IDs() []string {
	out := make([]string, 0, len(builtins)+len(r.custom))
	for id := range builtins {
		out = append(out, id)
	}
	for id := range r.custom {
		if _, shadowed := builtins[id]; !shadowed {
			out = append(out, id)
		}
	}
	return out
}
