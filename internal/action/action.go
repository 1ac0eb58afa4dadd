// Package action defines the tagged action type produced by the show-flow
// scheduler, the highlight detector and reward redemptions, and consumed by
// the reaction pipeline's dispatcher.
package action

import (
	"encoding/json"
	"fmt"
)

// Kind is a closed set of action kinds.
type Kind string

const (
	KindScene      Kind = "scene"      // switch the OBS program scene
	KindHotkey     Kind = "hotkey"     // trigger an OBS hotkey by name
	KindExpression Kind = "expression" // inject a VTS expression parameter
	KindPersona    Kind = "persona"    // switch the active persona
	KindSay        Kind = "say"        // send a chat line through the throttler
)

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	switch k {
	case KindScene, KindHotkey, KindExpression, KindPersona, KindSay:
		return true
	}
	return false
}

// Action is one externally-visible effect.
type Action struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.Value)
}

// UnmarshalJSON validates the kind so malformed config fails loudly at load
// time instead of silently installing dead actions.
func (a *Action) UnmarshalJSON(data []byte) error {
	type raw Action
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if !Kind(r.Kind).Known() {
		return fmt.Errorf("unknown action kind %q", r.Kind)
	}
	*a = Action(r)
	return nil
}
