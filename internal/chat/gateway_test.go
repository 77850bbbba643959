package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/roomsync/internal/model"
	"github.com/hitoshi/roomsync/internal/security"
)

// fakeSessionFinder は関数フィールドで挙動を差し替えられるSessionFinderのモック。
type fakeSessionFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Session, error)
}

func (f *fakeSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return f.findByIDFunc(ctx, id)
}

// fakeUserFinder は関数フィールドで挙動を差し替えられるUserFinderのモック。
type fakeUserFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (f *fakeUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return f.findByIDFunc(ctx, id)
}

func validSessionFinder(userID string) *fakeSessionFinder {
	return &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{
				ID:        id,
				UserID:    userID,
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
}

func newTestGateway(t *testing.T, sessions SessionFinder, users UserFinder, store MessageStore) (*Gateway, *Registry) {
	t.Helper()
	reg := NewRegistry(newTestCollector())
	g := NewGateway(GatewayDeps{
		Registry:  reg,
		Sessions:  sessions,
		Users:     users,
		Store:     store,
		Sanitizer: security.NewMessageSanitizer(),
		Metrics:   reg.collector,
	}, testConfig(), "http://localhost:3000")
	return g, reg
}

func decodeErrorCode(t *testing.T, body string) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Code
}

// TestGateway_RejectsWithoutCookie はCookieなしのリクエストが
// アップグレード前に401で拒否されることを検証する。
func TestGateway_RejectsWithoutCookie(t *testing.T) {
	g, _ := newTestGateway(t,
		validSessionFinder("user-1"),
		&fakeUserFinder{findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		}},
		&fakeMessageStore{},
	)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w.Body.String()); code != model.ErrCodeUnauthorized {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeUnauthorized)
	}
}

// TestGateway_RejectsUnknownSession は無効なセッションIDが401で拒否されることを検証する。
func TestGateway_RejectsUnknownSession(t *testing.T) {
	g, _ := newTestGateway(t,
		&fakeSessionFinder{findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil
		}},
		&fakeUserFinder{findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			t.Error("user lookup should not happen without a valid session")
			return nil, nil
		}},
		&fakeMessageStore{},
	)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "expired"})
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestGateway_RejectsUserWithoutApartment はアパート未割り当てユーザーが
// アップグレード前に403で拒否されることを検証する。
func TestGateway_RejectsUserWithoutApartment(t *testing.T) {
	g, reg := newTestGateway(t,
		validSessionFinder("user-1"),
		&fakeUserFinder{findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "new@example.com", ApartmentID: ""}, nil
		}},
		&fakeMessageStore{},
	)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "tok"})
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if code := decodeErrorCode(t, w.Body.String()); code != model.ErrCodeNoApartment {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeNoApartment)
	}
	if got := reg.MemberCount(""); got != 0 {
		t.Errorf("rejected connection must not join any group, MemberCount = %d", got)
	}
}

// TestGateway_OriginChecker はOriginヘッダーの検証を検証する。
func TestGateway_OriginChecker(t *testing.T) {
	check := originChecker("http://localhost:3000")

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"Originなし", "", true},
		{"許可オリジン", "http://localhost:3000", true},
		{"不許可オリジン", "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := check(req); got != tt.want {
				t.Errorf("originChecker(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// TestGateway_WebSocketRoundTrip は実際のWebSocket接続でメッセージ送信から
// 永続化・エコー受信までの一連の流れを検証する。
func TestGateway_WebSocketRoundTrip(t *testing.T) {
	store := &fakeMessageStore{}
	g, reg := newTestGateway(t,
		validSessionFinder("user-1"),
		&fakeUserFinder{findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "resident@example.com", ApartmentID: "apt1"}, nil
		}},
		store,
	)

	srv := httptest.NewServer(g)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Cookie", "session_id=tok")

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
	}

	// 参加はフレーム読み取り開始より先に完了している
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && reg.MemberCount("apt1") == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := reg.MemberCount("apt1"); got != 1 {
		t.Fatalf("MemberCount = %d, want 1", got)
	}

	if err := conn.WriteJSON(map[string]string{"message": "お風呂空きました"}); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame outboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read echo: %v", err)
	}

	if frame.Message != "お風呂空きました" {
		t.Errorf("frame.Message = %q, want original body", frame.Message)
	}
	if frame.UserEmail != "resident@example.com" {
		t.Errorf("frame.UserEmail = %q, want resident@example.com", frame.UserEmail)
	}
	if _, err := time.Parse(time.RFC3339, frame.Timestamp); err != nil {
		t.Errorf("frame.Timestamp = %q is not RFC3339: %v", frame.Timestamp, err)
	}

	created := store.createdMessages()
	if len(created) != 1 {
		t.Fatalf("created messages = %d, want 1", len(created))
	}
	if created[0].ApartmentID != "apt1" {
		t.Errorf("stored apartment = %q, want apt1", created[0].ApartmentID)
	}

	// 切断でレジストリから離脱する
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && reg.MemberCount("apt1") != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := reg.MemberCount("apt1"); got != 0 {
		t.Errorf("MemberCount after disconnect = %d, want 0", got)
	}
}
