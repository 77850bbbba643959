package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/roomsync/internal/middleware"
	"github.com/hitoshi/roomsync/internal/model"
)

// --- モック定義 ---

// mockSessionFinder はmiddleware.SessionFinderのモック実装。
type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// validSessionFinder はどのセッションIDも同一ユーザーとして解決するSessionFinderを返す。
func validSessionFinder(userID string) *mockSessionFinder {
	return &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{
				ID:        id,
				UserID:    userID,
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
}

func newTestRouterDeps(t *testing.T) (*RouterDeps, *middleware.RateLimiter) {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		SessionFinder:     validSessionFinder("user-123"),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		CSRFConfig:        middleware.CSRFConfig{},
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),

		AuthService: &mockAuthService{},
		AuthConfig:  testAuthConfig(),

		ScheduleService: &mockScheduleService{},

		ChatHistory:      &mockChatHistory{},
		UserFinder:       residentFinder("apt1"),
		ChatHistoryLimit: 50,

		AdminScheduleLister: &mockScheduleService{},
		ApartmentCreator:    &mockApartmentCreator{},
		ApartmentAssigner:   &mockApartmentAssigner{},

		UserService: &mockUserService{},
	}
	return deps, rl
}

// sessionRequest はセッションCookie付きのテストリクエストを生成する。
func sessionRequest(method, path string, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-123"})
	return req
}

// csrfRequest はセッションCookieとCSRFトークン付きのテストリクエストを生成する。
func csrfRequest(method, path string, body string) *http.Request {
	req := sessionRequest(method, path, body)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-abc")
	return req
}

// --- ルーティングテスト ---

func TestNewRouter_HealthEndpoint(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_APIRequiresSession(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/slots"},
		{http.MethodGet, "/api/dashboard"},
		{http.MethodGet, "/api/admin/schedules"},
		{http.MethodDelete, "/api/users/me"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			req := httptest.NewRequest(p.method, p.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestNewRouter_StateChangeRequiresCSRFToken(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	// セッションは有効だがCSRFトークンがない
	req := sessionRequest(http.MethodPost, "/api/slots", `{"slot_type":"bathroom","start_time":"2026-09-01T19:00:00Z"}`)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestNewRouter_CSRFTokenEndpoint(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	req := sessionRequest(http.MethodGet, "/api/csrf-token", "")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/csrf-token status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["token"] == "" {
		t.Error("expected non-empty csrf token")
	}
}

func TestNewRouter_CreateSlotThroughFullStack(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	deps.ScheduleService = &mockScheduleService{
		createSlotFn: func(ctx context.Context, userID string, slotType string, startTime time.Time) (*model.ScheduleSlot, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return &model.ScheduleSlot{
				ID:        "slot-1",
				SlotType:  model.SlotTypeBathroom,
				StartTime: start,
				EndTime:   start.Add(15 * time.Minute),
			}, nil
		},
	}
	router := NewRouter(deps)

	req := csrfRequest(http.MethodPost, "/api/slots", `{"slot_type":"bathroom","start_time":"2026-09-01T19:00:00Z"}`)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("POST /api/slots status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestNewRouter_CancelSlotRoute(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	var gotSlotID string
	deps.ScheduleService = &mockScheduleService{
		cancelSlotFn: func(ctx context.Context, userID, slotID string) error {
			gotSlotID = slotID
			return nil
		},
	}
	router := NewRouter(deps)

	req := csrfRequest(http.MethodDelete, "/api/slots/slot-42", "")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /api/slots/slot-42 status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotSlotID != "slot-42" {
		t.Errorf("slotID = %q, want %q", gotSlotID, "slot-42")
	}
}

func TestNewRouter_AdminAssignApartmentRoute(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	deps.UserFinder = residentFinder(model.AdminApartmentID)
	var gotUserID string
	deps.ApartmentAssigner = &mockApartmentAssigner{
		assignFn: func(ctx context.Context, userID, apartmentID string) error {
			gotUserID = userID
			return nil
		},
	}
	router := NewRouter(deps)

	req := csrfRequest(http.MethodPut, "/api/admin/users/user-9/apartment", `{"apartment_id":"apt3"}`)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("PUT /api/admin/users/user-9/apartment status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotUserID != "user-9" {
		t.Errorf("userID = %q, want %q", gotUserID, "user-9")
	}
}

func TestNewRouter_AuthRoutesAreOutsideSessionMiddleware(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	deps.AuthService = &mockAuthService{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	router := NewRouter(deps)

	// セッションCookieなしでアクセスできること
	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("GET /auth/google/login status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
}

func TestNewRouter_SecurityHeadersApplied(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}

func TestNewRouter_CORSHeadersApplied(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodOptions, "/api/slots", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNewRouter_ChatGatewayMounted(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	gatewayCalled := false
	deps.ChatGateway = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayCalled = true
		w.WriteHeader(http.StatusUnauthorized)
	})
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if !gatewayCalled {
		t.Error("expected chat gateway to handle /ws/chat")
	}
}

func TestNewRouter_UnknownRouteReturns404(t *testing.T) {
	deps, _ := newTestRouterDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound && w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 404 or 401", w.Code)
	}
}
