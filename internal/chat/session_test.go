package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// decodeOutbound は配送ペイロードをデコードするテストヘルパー。
func decodeOutbound(t *testing.T, payload []byte) outboundFrame {
	t.Helper()
	var frame outboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("failed to decode outbound frame: %v", err)
	}
	return frame
}

// TestSession_HandleInbound_PersistsAndEchoes は有効なフレームが永続化され、
// 送信者を含む全参加者にエコーされることを検証する。
func TestSession_HandleInbound_PersistsAndEchoes(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	store := &fakeMessageStore{}
	sender := newTestSession(t, reg, store, "apt1", "sender@example.com", testConfig())
	peer := newTestSession(t, reg, store, "apt1", "peer@example.com", testConfig())

	reg.Join("apt1", sender)
	reg.Join("apt1", peer)

	sender.handleInbound(context.Background(), []byte(`{"message": "  買い物に行ってきます  "}`))

	created := store.createdMessages()
	if len(created) != 1 {
		t.Fatalf("created messages = %d, want 1", len(created))
	}
	if created[0].Body != "買い物に行ってきます" {
		t.Errorf("stored body = %q, want trimmed body", created[0].Body)
	}
	if created[0].AuthorEmail != "sender@example.com" {
		t.Errorf("stored author = %q, want sender@example.com", created[0].AuthorEmail)
	}

	for _, s := range []*Session{sender, peer} {
		payload, ok := drainPayload(t, s)
		if !ok {
			t.Fatalf("session %s did not receive echo", s.UserEmail())
		}
		frame := decodeOutbound(t, payload)
		if frame.Message != "買い物に行ってきます" {
			t.Errorf("frame.Message = %q, want trimmed body", frame.Message)
		}
		if frame.UserEmail != "sender@example.com" {
			t.Errorf("frame.UserEmail = %q, want sender@example.com", frame.UserEmail)
		}
		if _, err := time.Parse(time.RFC3339, frame.Timestamp); err != nil {
			t.Errorf("frame.Timestamp = %q is not RFC3339: %v", frame.Timestamp, err)
		}
	}
}

// TestSession_HandleInbound_DropsEmptyMessage は空白のみのメッセージが
// 永続化もブロードキャストもされないことを検証する。
func TestSession_HandleInbound_DropsEmptyMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"空文字列", `{"message": ""}`},
		{"空白のみ", `{"message": "   \t\n  "}`},
		{"messageフィールドなし", `{"text": "hello"}`},
		{"タグ除去後に空", `{"message": "<script>alert(1)</script>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(newTestCollector())
			store := &fakeMessageStore{}
			sender := newTestSession(t, reg, store, "apt1", "a@example.com", testConfig())
			reg.Join("apt1", sender)

			sender.handleInbound(context.Background(), []byte(tt.raw))

			if got := len(store.createdMessages()); got != 0 {
				t.Errorf("created messages = %d, want 0", got)
			}
			if _, ok := drainPayload(t, sender); ok {
				t.Error("no broadcast expected for dropped message")
			}
		})
	}
}

// TestSession_HandleInbound_DropsInvalidJSON は不正なJSONフレームが
// 黙って破棄されることを検証する。
func TestSession_HandleInbound_DropsInvalidJSON(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	store := &fakeMessageStore{}
	sender := newTestSession(t, reg, store, "apt1", "a@example.com", testConfig())
	reg.Join("apt1", sender)

	sender.handleInbound(context.Background(), []byte("not json at all"))

	if got := len(store.createdMessages()); got != 0 {
		t.Errorf("created messages = %d, want 0", got)
	}
	if _, ok := drainPayload(t, sender); ok {
		t.Error("no broadcast expected for invalid frame")
	}
}

// TestSession_HandleInbound_SanitizesHTML はHTMLタグが除去された本文が
// 永続化・配送されることを検証する。
func TestSession_HandleInbound_SanitizesHTML(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	store := &fakeMessageStore{}
	sender := newTestSession(t, reg, store, "apt1", "a@example.com", testConfig())
	reg.Join("apt1", sender)

	sender.handleInbound(context.Background(), []byte(`{"message": "<b>19時</b>にキッチン使います"}`))

	created := store.createdMessages()
	if len(created) != 1 {
		t.Fatalf("created messages = %d, want 1", len(created))
	}
	if created[0].Body != "19時にキッチン使います" {
		t.Errorf("stored body = %q, want tags stripped", created[0].Body)
	}
}

// TestSession_HandleInbound_BroadcastsDespitePersistFailure は永続化が失敗しても
// ブロードキャストが行われることを検証する。
func TestSession_HandleInbound_BroadcastsDespitePersistFailure(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	store := &fakeMessageStore{err: errors.New("db down")}
	sender := newTestSession(t, reg, store, "apt1", "a@example.com", testConfig())
	peer := newTestSession(t, reg, store, "apt1", "b@example.com", testConfig())
	reg.Join("apt1", sender)
	reg.Join("apt1", peer)

	sender.handleInbound(context.Background(), []byte(`{"message": "hello"}`))

	payload, ok := drainPayload(t, peer)
	if !ok {
		t.Fatal("peer should receive broadcast despite persist failure")
	}
	frame := decodeOutbound(t, payload)
	if frame.Message != "hello" {
		t.Errorf("frame.Message = %q, want %q", frame.Message, "hello")
	}
}

// TestSession_HandleInbound_RateLimitsFrames はバーストを超えたフレームが
// 破棄されることを検証する。
func TestSession_HandleInbound_RateLimitsFrames(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	store := &fakeMessageStore{}

	cfg := testConfig()
	cfg.RateBurst = 2
	cfg.RateInterval = time.Hour
	sender := newTestSession(t, reg, store, "apt1", "a@example.com", cfg)
	reg.Join("apt1", sender)

	for i := 0; i < 5; i++ {
		sender.handleInbound(context.Background(), []byte(`{"message": "spam"}`))
	}

	if got := len(store.createdMessages()); got != 2 {
		t.Errorf("created messages = %d, want 2 (burst limit)", got)
	}
}

// TestSession_CloseLeavesExactlyOnce は切断要因が競合しても離脱が
// 正確に1回だけ行われることを検証する。
func TestSession_CloseLeavesExactlyOnce(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	s := newTestSession(t, reg, &fakeMessageStore{}, "apt1", "a@example.com", testConfig())
	other := newTestSession(t, reg, &fakeMessageStore{}, "apt1", "b@example.com", testConfig())

	reg.Join("apt1", s)
	reg.Join("apt1", other)
	s.markJoined()

	s.Close()
	s.Close()
	s.Close()

	if got := reg.MemberCount("apt1"); got != 1 {
		t.Errorf("MemberCount = %d, want 1", got)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want StateClosed", s.State())
	}

	// クローズ後のenqueueは失敗する
	if s.enqueue([]byte("late")) {
		t.Error("enqueue after close should fail")
	}
}

// TestSession_StateTransitions は状態遷移がCONNECTING→JOINED→CLOSEDの
// 順に進むことを検証する。
func TestSession_StateTransitions(t *testing.T) {
	reg := NewRegistry(newTestCollector())
	s := newTestSession(t, reg, &fakeMessageStore{}, "apt1", "a@example.com", testConfig())

	if s.State() != StateConnecting {
		t.Errorf("initial state = %v, want StateConnecting", s.State())
	}

	reg.Join("apt1", s)
	s.markJoined()
	if s.State() != StateJoined {
		t.Errorf("state after join = %v, want StateJoined", s.State())
	}

	s.Close()
	if s.State() != StateClosed {
		t.Errorf("state after close = %v, want StateClosed", s.State())
	}
}
