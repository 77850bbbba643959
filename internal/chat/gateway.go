package chat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/roomsync/internal/metrics"
	"github.com/hitoshi/roomsync/internal/middleware"
	"github.com/hitoshi/roomsync/internal/model"
	"github.com/hitoshi/roomsync/internal/security"
)

const sessionCookieName = "session_id"

// SessionFinder はログインセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// GatewayDeps はGatewayが依存するコンポーネント群。
type GatewayDeps struct {
	Registry  *Registry
	Sessions  SessionFinder
	Users     UserFinder
	Store     MessageStore
	Sanitizer security.MessageSanitizerService
	Metrics   metrics.MetricsCollector
}

// Gateway はWebSocket接続の受け付けを担う。認証とアパート割り当ての検証を
// プロトコルアップグレード前に行い、検証済みの接続だけをセッションとして
// グループに参加させる。
type Gateway struct {
	deps     GatewayDeps
	cfg      Config
	upgrader websocket.Upgrader
}

// NewGateway は新しいGatewayを生成する。allowedOriginはブラウザからの
// クロスオリジン接続を許可するオリジン。
func NewGateway(deps GatewayDeps, cfg Config, allowedOrigin string) *Gateway {
	return &Gateway{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

// originChecker はOriginヘッダーの検証関数を返す。
// ヘッダーなし（非ブラウザクライアント）と許可オリジンのみ受け付ける。
func originChecker(allowedOrigin string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return origin == allowedOrigin
	}
}

// ServeHTTP はGET /ws/chatを処理する。
// 未認証は401、アパート未割り当ては403をアップグレード前に返す。
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, apiErr := g.authenticate(r)
	if apiErr != nil {
		switch apiErr.Code {
		case model.ErrCodeNoApartment:
			g.deps.Metrics.RecordConnectionRejected("no_apartment")
			middleware.WriteErrorResponse(w, http.StatusForbidden, apiErr)
		default:
			g.deps.Metrics.RecordConnectionRejected("unauthorized")
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
		}
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeは失敗時に自身でレスポンスを書き込む
		slog.Error("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("apartment_id", user.ApartmentID),
		)
		g.deps.Metrics.RecordConnectionRejected("upgrade_failed")
		return
	}

	session := NewSession(conn, user.ApartmentID, user.Email, SessionDeps{
		Registry:  g.deps.Registry,
		Store:     g.deps.Store,
		Sanitizer: g.deps.Sanitizer,
		Metrics:   g.deps.Metrics,
	}, g.cfg)

	// 参加はフレーム読み取り開始より先に完了させる
	g.deps.Registry.Join(user.ApartmentID, session)
	session.markJoined()

	slog.Info("chat session established",
		slog.String("apartment_id", user.ApartmentID),
		slog.String("user_email", user.Email),
	)

	session.Run(r.Context())

	slog.Info("chat session closed",
		slog.String("apartment_id", user.ApartmentID),
		slog.String("user_email", user.Email),
	)
}

// authenticate はセッションCookieからユーザーを解決する。
// アパートIDは常にサーバー側のユーザーレコードから取得し、
// クライアントの申告は一切信用しない。
func (g *Gateway) authenticate(r *http.Request) (*model.User, *model.APIError) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := g.deps.Sessions.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnauthorizedError()
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := g.deps.Users.FindByID(r.Context(), session.UserID)
	if err != nil {
		slog.Error("failed to find user",
			slog.String("error", err.Error()),
			slog.String("user_id", session.UserID),
		)
		return nil, model.NewUnauthorizedError()
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	if user.ApartmentID == "" {
		return nil, model.NewNoApartmentError()
	}

	return user, nil
}
