package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/roomsync/internal/middleware"
	"github.com/hitoshi/roomsync/internal/model"
)

// AdminScheduleLister は管理画面が必要とする全予約取得インターフェース。
type AdminScheduleLister interface {
	// ListAllSlots は全アパートの予約枠を開始時刻昇順で予約者メール付きで返す。
	ListAllSlots(ctx context.Context) ([]*model.ScheduleSlotWithUser, error)
}

// ApartmentCreator はアパート作成の最小インターフェース。
// repository.ApartmentRepositoryを直接変更せず、最小限のインターフェースとして定義する。
type ApartmentCreator interface {
	// Create はアパートを作成する。apartment_id重複時はDuplicateApartmentエラーを返す。
	Create(ctx context.Context, apartment *model.Apartment) error
}

// ApartmentAssigner はユーザーへのアパート割り当てインターフェース。
type ApartmentAssigner interface {
	// AssignApartment はユーザーにアパートを割り当てる。既存の割り当ては置き換えられる。
	AssignApartment(ctx context.Context, userID, apartmentID string) error
}

// AdminHandler は管理スタッフ専用のHTTPハンドラー。
// apartment_idに"admin"が割り当てられたユーザーのみ操作できる。
type AdminHandler struct {
	users      UserFinder
	schedules  AdminScheduleLister
	apartments ApartmentCreator
	assigner   ApartmentAssigner
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users UserFinder, schedules AdminScheduleLister, apartments ApartmentCreator, assigner ApartmentAssigner) *AdminHandler {
	return &AdminHandler{
		users:      users,
		schedules:  schedules,
		apartments: apartments,
		assigner:   assigner,
	}
}

// createApartmentRequest はアパート作成リクエストのボディ。
type createApartmentRequest struct {
	ApartmentID string `json:"apartment_id"`
}

// assignApartmentRequest はアパート割り当てリクエストのボディ。
type assignApartmentRequest struct {
	ApartmentID string `json:"apartment_id"`
}

// adminSlotResponse はアパートID付きの予約枠レスポンス。管理画面用。
type adminSlotResponse struct {
	ID          string `json:"id"`
	ApartmentID string `json:"apartment_id"`
	SlotType    string `json:"slot_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	UserEmail   string `json:"user_email"`
}

// ListSchedules は全アパートの予約枠一覧を返す。
// GET /api/admin/schedules
func (h *AdminHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	slots, err := h.schedules.ListAllSlots(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	res := make([]adminSlotResponse, 0, len(slots))
	for _, s := range slots {
		res = append(res, adminSlotResponse{
			ID:          s.ID,
			ApartmentID: s.ApartmentID,
			SlotType:    string(s.SlotType),
			StartTime:   s.StartTime.Format(time.RFC3339),
			EndTime:     s.EndTime.Format(time.RFC3339),
			UserEmail:   s.UserEmail,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"slots": res,
	})
}

// CreateApartment はアパートを作成する。
// POST /api/admin/apartments
func (h *AdminHandler) CreateApartment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req createApartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	if req.ApartmentID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("apartment_idが空です。"))
		return
	}
	// "admin"は管理スタッフ用の予約済みIDのためアパートとして作成できない
	if req.ApartmentID == model.AdminApartmentID {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("このapartment_idは予約されています。"))
		return
	}

	apartment := &model.Apartment{ApartmentID: req.ApartmentID}
	if err := h.apartments.Create(r.Context(), apartment); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"apartment_id": apartment.ApartmentID,
	})
}

// AssignApartment はユーザーにアパートを割り当てる。
// PUT /api/admin/users/:id/apartment
func (h *AdminHandler) AssignApartment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	targetUserID := chi.URLParam(r, "id")

	var req assignApartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	if req.ApartmentID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("apartment_idが空です。"))
		return
	}

	if err := h.assigner.AssignApartment(r.Context(), targetUserID, req.ApartmentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin はリクエストユーザーが管理スタッフであることを検証する。
// 検証に失敗した場合はエラーレスポンスを書き込みfalseを返す。
func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return false
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return false
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return false
	}
	if !user.IsAdmin() {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return false
	}

	return true
}
