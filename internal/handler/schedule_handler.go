// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/roomsync/internal/middleware"
	"github.com/hitoshi/roomsync/internal/model"
)

// ScheduleServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	// CreateSlot は共有設備の予約枠を作成する。枠の長さは種別で固定される。
	CreateSlot(ctx context.Context, userID string, slotType string, startTime time.Time) (*model.ScheduleSlot, error)
	// ListSlotsForDay は指定日のアパート内予約枠を予約者メール付きで返す。
	ListSlotsForDay(ctx context.Context, userID string, day time.Time) ([]*model.ScheduleSlotWithUser, error)
	// CancelSlot は自分の予約枠をキャンセルする。
	CancelSlot(ctx context.Context, userID, slotID string) error
}

// ScheduleHandler は設備予約のHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
	}
}

// createSlotRequest は予約作成リクエストのボディ。
type createSlotRequest struct {
	SlotType  string `json:"slot_type"`
	StartTime string `json:"start_time"` // RFC3339
}

// slotResponse は予約枠のAPIレスポンス。
type slotResponse struct {
	ID        string `json:"id"`
	SlotType  string `json:"slot_type"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// slotWithUserResponse は予約者メール付きの予約枠レスポンス。
type slotWithUserResponse struct {
	ID        string `json:"id"`
	SlotType  string `json:"slot_type"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	UserEmail string `json:"user_email"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// CreateSlot は予約枠の作成を処理する。
// POST /api/slots
func (h *ScheduleHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("start_timeはRFC3339形式で指定してください。"))
		return
	}

	slot, err := h.service.CreateSlot(r.Context(), userID, req.SlotType, startTime)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toSlotResponse(slot))
}

// ListSlots は指定日の予約枠一覧を返す。
// GET /api/slots?date=YYYY-MM-DD（省略時は今日）
func (h *ScheduleHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	day := time.Now().UTC()
	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		day, err = time.Parse("2006-01-02", dateParam)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("dateはYYYY-MM-DD形式で指定してください。"))
			return
		}
	}

	slots, err := h.service.ListSlotsForDay(r.Context(), userID, day)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"slots": toSlotWithUserResponses(slots),
	})
}

// CancelSlot は自分の予約枠のキャンセルを処理する。
// DELETE /api/slots/:id
func (h *ScheduleHandler) CancelSlot(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	slotID := chi.URLParam(r, "id")

	if err := h.service.CancelSlot(r.Context(), userID, slotID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toSlotResponse はmodel.ScheduleSlotからAPIレスポンスに変換する。
func toSlotResponse(slot *model.ScheduleSlot) slotResponse {
	return slotResponse{
		ID:        slot.ID,
		SlotType:  string(slot.SlotType),
		StartTime: slot.StartTime.Format(time.RFC3339),
		EndTime:   slot.EndTime.Format(time.RFC3339),
	}
}

// toSlotWithUserResponses は予約者メール付き予約枠のスライスをAPIレスポンスに変換する。
// nilスライスでもJSONで[]になるよう空スライスを返す。
func toSlotWithUserResponses(slots []*model.ScheduleSlotWithUser) []slotWithUserResponse {
	res := make([]slotWithUserResponse, 0, len(slots))
	for _, s := range slots {
		res = append(res, slotWithUserResponse{
			ID:        s.ID,
			SlotType:  string(s.SlotType),
			StartTime: s.StartTime.Format(time.RFC3339),
			EndTime:   s.EndTime.Format(time.RFC3339),
			UserEmail: s.UserEmail,
		})
	}
	return res
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeNoApartment:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidSlotType, model.ErrCodeSlotInPast:
		return http.StatusBadRequest
	case model.ErrCodeSlotConflict, model.ErrCodeDuplicateApartment:
		return http.StatusConflict
	case model.ErrCodeSlotNotFound, model.ErrCodeUserNotFound, model.ErrCodeApartmentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
