// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrApartmentNotFound はapartment_idが既知のアパートに解決できない場合のセンチネルエラー。
// メッセージ永続化ではこのエラーはログに記録した上で握りつぶされ、ライブ配信は継続される。
var ErrApartmentNotFound = errors.New("apartment not found")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, booking, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeApartmentNotFound  = "APARTMENT_NOT_FOUND"
	ErrCodeNoApartment        = "NO_APARTMENT"
	ErrCodeInvalidSlotType    = "INVALID_SLOT_TYPE"
	ErrCodeSlotInPast         = "SLOT_IN_PAST"
	ErrCodeSlotConflict       = "SLOT_CONFLICT"
	ErrCodeSlotNotFound       = "SLOT_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeDuplicateApartment = "DUPLICATE_APARTMENT"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewNoApartmentError はアパート未割り当てエラーを生成する。
func NewNoApartmentError() *APIError {
	return &APIError{
		Code:     ErrCodeNoApartment,
		Message:  "アパートが割り当てられていません。",
		Category: "auth",
		Action:   "管理者にアパートの割り当てを依頼してください。",
	}
}

// NewApartmentNotFoundError はアパート未検出エラーを生成する。
func NewApartmentNotFoundError(apartmentID string) *APIError {
	return &APIError{
		Code:     ErrCodeApartmentNotFound,
		Message:  fmt.Sprintf("指定されたアパートが見つかりません: %s", apartmentID),
		Category: "booking",
		Action:   "アパートIDを確認してください。",
	}
}

// NewInvalidSlotTypeError は無効な枠種別エラーを生成する。
func NewInvalidSlotTypeError(slotType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSlotType,
		Message:  fmt.Sprintf("無効な枠種別です: %s", slotType),
		Category: "validation",
		Action:   "枠種別には bathroom または kitchen を指定してください。",
	}
}

// NewSlotInPastError は過去日時の予約エラーを生成する。
func NewSlotInPastError() *APIError {
	return &APIError{
		Code:     ErrCodeSlotInPast,
		Message:  "過去の時間帯は予約できません。",
		Category: "validation",
		Action:   "現在以降の開始時刻を指定してください。",
	}
}

// NewSlotConflictError は予約重複エラーを生成する。
func NewSlotConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeSlotConflict,
		Message:  "この時間帯は既存の予約と重複しています。",
		Category: "booking",
		Action:   "別の時間帯を選択してください。",
	}
}

// NewSlotNotFoundError は予約枠未検出エラーを生成する。
func NewSlotNotFoundError(slotID string) *APIError {
	return &APIError{
		Code:     ErrCodeSlotNotFound,
		Message:  fmt.Sprintf("指定された予約枠が見つかりません: %s", slotID),
		Category: "booking",
		Action:   "予約枠IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewDuplicateApartmentError はアパートID重複エラーを生成する。
func NewDuplicateApartmentError(apartmentID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateApartment,
		Message:  fmt.Sprintf("このアパートIDは既に登録されています: %s", apartmentID),
		Category: "booking",
		Action:   "別のアパートIDを指定してください。",
	}
}
