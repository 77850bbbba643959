package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/hitoshi/roomsync/internal/metrics"
	"github.com/hitoshi/roomsync/internal/model"
	"github.com/hitoshi/roomsync/internal/security"
)

const (
	// writeWait は1回の書き込みに許容する最大時間。
	writeWait = 10 * time.Second

	// pongWait はpong応答を待つ最大時間。超過した接続は切断される。
	pongWait = 60 * time.Second

	// pingInterval はping送信の間隔。pongWaitより短くなければならない。
	pingInterval = 54 * time.Second
)

// State はセッションのライフサイクル状態。
type State int32

const (
	// StateConnecting は認証済みだがまだグループ未参加の状態。
	StateConnecting State = iota
	// StateJoined はグループ参加済みでメッセージ送受信が可能な状態。
	StateJoined
	// StateClosed は離脱処理が完了した終了状態。
	StateClosed
)

// MessageStore はチャットメッセージの永続化に必要なインターフェース。
// repository.ChatMessageRepositoryの部分集合として定義する。
type MessageStore interface {
	Create(ctx context.Context, apartmentID, authorEmail, body string, createdAt time.Time) (*model.ChatMessage, error)
}

// Config はチャット基盤の動作パラメータ。
type Config struct {
	SendBuffer     int           // セッションごとの送信チャネルのバッファ長
	MaxMessageSize int64         // 受信フレームの最大サイズ（バイト）
	RateBurst      int           // 受信レート制限のバースト
	RateInterval   time.Duration // 受信レート制限のトークン補充間隔
}

// SessionDeps はSessionが依存するコンポーネント群。
type SessionDeps struct {
	Registry  *Registry
	Store     MessageStore
	Sanitizer security.MessageSanitizerService
	Metrics   metrics.MetricsCollector
}

// inboundFrame はクライアントから受信するフレーム。
type inboundFrame struct {
	Message string `json:"message"`
}

// outboundFrame はグループに配送されるフレーム。
type outboundFrame struct {
	Message   string `json:"message"`
	UserEmail string `json:"user_email"`
	Timestamp string `json:"timestamp"`
}

// Session は1本のWebSocket接続を表す。アパートと送信者メールアドレスは
// 接続確立時に確定し、生存期間中変わらない。
type Session struct {
	conn        *websocket.Conn
	send        chan []byte
	apartmentID string
	userEmail   string

	deps    SessionDeps
	cfg     Config
	limiter *rate.Limiter

	closeOnce sync.Once

	mu     sync.Mutex
	state  State
	closed bool // sendチャネルがクローズ済みかどうか
}

// NewSession は認証済み接続からSessionを生成する。
// この時点ではグループ未参加（StateConnecting）。
func NewSession(conn *websocket.Conn, apartmentID, userEmail string, deps SessionDeps, cfg Config) *Session {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Session{
		conn:        conn,
		send:        make(chan []byte, cfg.SendBuffer),
		apartmentID: apartmentID,
		userEmail:   userEmail,
		deps:        deps,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Every(cfg.RateInterval), cfg.RateBurst),
		state:       StateConnecting,
	}
}

// ApartmentID はセッションが属するアパートIDを返す。
func (s *Session) ApartmentID() string {
	return s.apartmentID
}

// UserEmail は送信者として記録されるメールアドレスを返す。
func (s *Session) UserEmail() string {
	return s.userEmail
}

// State は現在のライフサイクル状態を返す。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// markJoined はグループ参加完了を記録する。ゲートウェイがJoin直後に呼ぶ。
func (s *Session) markJoined() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateJoined
	}
}

// enqueue はペイロードを送信チャネルに積む。バッファ満杯または
// クローズ済みの場合はfalseを返し、ブロックしない。
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Close は離脱シーケンスを実行する。トランスポートエラーとクライアント起因の
// 切断が競合しても、レジストリからの離脱は正確に1回だけ行われる。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.deps.Registry.Leave(s.apartmentID, s)

		s.mu.Lock()
		s.state = StateClosed
		s.closed = true
		s.mu.Unlock()
		close(s.send)

		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				slog.Debug("error closing websocket connection",
					slog.String("error", err.Error()),
					slog.String("apartment_id", s.apartmentID),
				)
			}
		}
	})
}

// Run は読み書きポンプを起動し、接続が終了するまでブロックする。
// 戻る時点で離脱シーケンスは完了している。
func (s *Session) Run(ctx context.Context) {
	go s.writePump()
	s.readPump(ctx)
}

// readPump は受信フレームを到着順に逐次処理する。
// 処理順が永続化・ブロードキャストの順序を決める。
func (s *Session) readPump(ctx context.Context) {
	defer s.Close()

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Error("failed to set read deadline",
			slog.String("error", err.Error()),
		)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				slog.Error("unexpected websocket close",
					slog.String("error", err.Error()),
					slog.String("apartment_id", s.apartmentID),
				)
			}
			return
		}
		s.handleInbound(ctx, raw)
	}
}

// handleInbound は受信フレームを検証・永続化・ブロードキャストする。
// 永続化の失敗はログに記録した上でブロードキャストを続行する。
func (s *Session) handleInbound(ctx context.Context, raw []byte) {
	if !s.limiter.Allow() {
		s.deps.Metrics.RecordMessageDropped("rate_limit")
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.deps.Metrics.RecordMessageDropped("invalid")
		return
	}

	body := strings.TrimSpace(frame.Message)
	if body == "" {
		s.deps.Metrics.RecordMessageDropped("empty")
		return
	}

	body = strings.TrimSpace(s.deps.Sanitizer.Sanitize(body))
	if body == "" {
		s.deps.Metrics.RecordMessageDropped("empty")
		return
	}

	createdAt := time.Now().UTC()

	// 永続化してからブロードキャストする。失敗してもグループへの配送は行う。
	if _, err := s.deps.Store.Create(ctx, s.apartmentID, s.userEmail, body, createdAt); err != nil {
		slog.Error("failed to persist chat message",
			slog.String("error", err.Error()),
			slog.String("apartment_id", s.apartmentID),
			slog.String("user_email", s.userEmail),
		)
		s.deps.Metrics.RecordPersistFailure()
	} else {
		s.deps.Metrics.RecordMessagePersisted()
	}

	payload, err := json.Marshal(outboundFrame{
		Message:   body,
		UserEmail: s.userEmail,
		Timestamp: createdAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("failed to marshal outbound frame",
			slog.String("error", err.Error()),
		)
		return
	}

	s.deps.Registry.Broadcast(s.apartmentID, payload)
}

// writePump は送信チャネルのペイロードを接続へ書き出し、pingで接続を維持する。
// 書き込み失敗は切断として扱う。
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Closeがチャネルを閉じた
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
