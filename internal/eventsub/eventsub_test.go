package eventsub

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tsubaki/internal/action"
)

func TestHandleFrameDispatchesRedemption(t *testing.T) {
	var got []Redemption
	c := New(Config{OnRedeem: func(r Redemption) { got = append(got, r) }})

	c.handleFrame([]byte(`{
		"metadata": {"message_type": "notification", "subscription_type": "channel.channel_points_custom_reward_redemption.add"},
		"payload": {"event": {"user_name": "Viewer", "user_input": "hi", "reward": {"title": "Scene Swap"}}}
	}`))

	if len(got) != 1 {
		t.Fatalf("redemptions = %d, want 1", len(got))
	}
	want := Redemption{RewardTitle: "Scene Swap", User: "Viewer", Input: "hi"}
	if got[0] != want {
		t.Fatalf("got %+v, want %+v", got[0], want)
	}
}

func TestHandleFrameIgnoresOtherNotifications(t *testing.T) {
	called := false
	c := New(Config{OnRedeem: func(Redemption) { called = true }})
	c.handleFrame([]byte(`{
		"metadata": {"message_type": "notification", "subscription_type": "channel.follow"},
		"payload": {"event": {}}
	}`))
	if called {
		t.Fatalf("follow event must not dispatch a redemption")
	}
}

func TestWelcomeCreatesSubscription(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eventsub/subscriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Client-Id") != "client-123" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("bad auth headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(Config{
		HelixURL:      srv.URL,
		ClientID:      "client-123",
		Token:         "tok",
		BroadcasterID: "555",
	})
	c.handleFrame([]byte(`{
		"metadata": {"message_type": "session_welcome"},
		"payload": {"session": {"id": "sess-abc"}}
	}`))

	select {
	case payload := <-received:
		transport := payload["transport"].(map[string]any)
		if transport["session_id"] != "sess-abc" {
			t.Fatalf("session_id = %v", transport["session_id"])
		}
		condition := payload["condition"].(map[string]any)
		if condition["broadcaster_user_id"] != "555" {
			t.Fatalf("broadcaster = %v", condition["broadcaster_user_id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no subscription request within 2s")
	}
}

func TestParseRewardTable(t *testing.T) {
	table, err := ParseRewardTable(map[string]string{
		ActionsKey: `{"Scene Swap": {"kind": "scene", "value": "Gaming"}, "Be Evil": {"kind": "persona", "value": "evil"}}`,
	})
	if err != nil {
		t.Fatal(err)
	}

	a, ok := table.Lookup("scene swap")
	if !ok || a.Kind != action.KindScene || a.Value != "Gaming" {
		t.Fatalf("lookup = %+v, %v", a, ok)
	}
	if _, ok := table.Lookup("SCENE SWAP"); !ok {
		t.Fatalf("lookup must be case-insensitive")
	}
	if _, ok := table.Lookup("unknown reward"); ok {
		t.Fatalf("unknown title must miss")
	}
}

func TestParseRewardTableEmptyAndInvalid(t *testing.T) {
	table, err := ParseRewardTable(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := table.Lookup("anything"); ok {
		t.Fatalf("empty table must miss")
	}

	if _, err := ParseRewardTable(map[string]string{ActionsKey: `not json`}); err == nil {
		t.Fatalf("invalid JSON must error")
	}
	if _, err := ParseRewardTable(map[string]string{ActionsKey: `{"X": {"kind": "launch_missiles", "value": "y"}}`}); err == nil {
		t.Fatalf("unknown action kind must error")
	}
}
