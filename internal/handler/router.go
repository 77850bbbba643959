package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/roomsync/internal/metrics"
	"github.com/hitoshi/roomsync/internal/middleware"
)

// HealthChecker はヘルスチェックエンドポイントが必要とする疎通確認インターフェース。
// *sql.DBがそのまま実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// /metrics エンドポイント
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// チャット（WebSocket接続ゲートウェイ）
	ChatGateway http.Handler

	// 予約
	ScheduleService ScheduleServiceInterface

	// ダッシュボード
	ChatHistory      ChatHistoryLister
	UserFinder       UserFinder
	ChatHistoryLimit int

	// 管理
	AdminScheduleLister AdminScheduleLister
	ApartmentCreator    ApartmentCreator
	ApartmentAssigner   ApartmentAssigner

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery
//	→（/api配下のみ）Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）とWebSocketエンドポイント（/ws/chat）は
// セッションミドルウェアの外に配置する。/ws/chatはゲートウェイ自身が認証する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	dashboardHandler := NewDashboardHandler(deps.ScheduleService, deps.ChatHistory, deps.UserFinder, deps.ChatHistoryLimit)
	adminHandler := NewAdminHandler(deps.UserFinder, deps.AdminScheduleLister, deps.ApartmentCreator, deps.ApartmentAssigner)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusメトリクス
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// WebSocketチャット（ゲートウェイがCookie検証・アップグレードを行う）
	if deps.ChatGateway != nil {
		r.Method(http.MethodGet, "/ws/chat", deps.ChatGateway)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// CSRFトークン取得
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 設備予約
		r.Route("/api/slots", func(r chi.Router) {
			// POST /api/slots - 予約作成（予約専用レート制限を追加）
			r.With(deps.RateLimiter.BookingMiddleware()).Post("/", scheduleHandler.CreateSlot)
			r.Get("/", scheduleHandler.ListSlots)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", scheduleHandler.CancelSlot)
			})
		})

		// ダッシュボード
		r.Get("/api/dashboard", dashboardHandler.Dashboard)

		// 管理スタッフ専用
		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/schedules", adminHandler.ListSchedules)
			r.Post("/apartments", adminHandler.CreateApartment)
			r.Put("/users/{id}/apartment", adminHandler.AssignApartment)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
