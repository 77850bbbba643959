package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/roomsync/internal/middleware"
	"github.com/hitoshi/roomsync/internal/model"
)

// ChatHistoryLister はダッシュボードが必要とするチャット履歴取得インターフェース。
type ChatHistoryLister interface {
	// ListRecentByApartment は指定アパートの直近メッセージを新しい順で最大limit件返す。
	ListRecentByApartment(ctx context.Context, apartmentID string, limit int) ([]*model.ChatMessage, error)
}

// UserFinder はユーザー取得の最小インターフェース。
type UserFinder interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
// 今日のアパート内予約と直近のチャット履歴をまとめて返す。
type DashboardHandler struct {
	schedule     ScheduleServiceInterface
	chatHistory  ChatHistoryLister
	users        UserFinder
	historyLimit int
	now          func() time.Time
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(schedule ScheduleServiceInterface, chatHistory ChatHistoryLister, users UserFinder, historyLimit int) *DashboardHandler {
	return &DashboardHandler{
		schedule:     schedule,
		chatHistory:  chatHistory,
		users:        users,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// chatMessageResponse はチャットメッセージのAPIレスポンス。
// WebSocketの配信フレームと同じフィールド構成にする。
type chatMessageResponse struct {
	Message   string `json:"message"`
	UserEmail string `json:"user_email"`
	Timestamp string `json:"timestamp"`
}

// dashboardResponse はダッシュボードのAPIレスポンス。
type dashboardResponse struct {
	Email       string                 `json:"email"`
	ApartmentID string                 `json:"apartment_id"`
	IsAdmin     bool                   `json:"is_admin"`
	Schedule    []slotWithUserResponse `json:"schedule"`
	Messages    []chatMessageResponse  `json:"messages"`
}

// Dashboard は今日の予定と直近のチャット履歴を返す。
// GET /api/dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	res := dashboardResponse{
		Email:       user.Email,
		ApartmentID: user.ApartmentID,
		IsAdmin:     user.IsAdmin(),
		Schedule:    []slotWithUserResponse{},
		Messages:    []chatMessageResponse{},
	}

	// アパート未割り当てのユーザーにはプロフィールのみ返す
	if user.ApartmentID != "" && !user.IsAdmin() {
		slots, err := h.schedule.ListSlotsForDay(r.Context(), userID, h.now().UTC())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		res.Schedule = toSlotWithUserResponses(slots)

		messages, err := h.chatHistory.ListRecentByApartment(r.Context(), user.ApartmentID, h.historyLimit)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		res.Messages = toChatMessageResponses(messages)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// toChatMessageResponses は新しい順で取得したメッセージを古い順に並べ替えて
// APIレスポンスに変換する。
func toChatMessageResponses(messages []*model.ChatMessage) []chatMessageResponse {
	res := make([]chatMessageResponse, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		res = append(res, chatMessageResponse{
			Message:   m.Body,
			UserEmail: m.AuthorEmail,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return res
}
