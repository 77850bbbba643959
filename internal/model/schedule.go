// Package model はドメインモデルを定義する。
package model

import "time"

// SlotType は予約対象の共有設備の種別を表す。
type SlotType string

const (
	// SlotTypeBathroom は浴室の予約枠（15分）。
	SlotTypeBathroom SlotType = "bathroom"
	// SlotTypeKitchen はキッチンの予約枠（1時間）。
	SlotTypeKitchen SlotType = "kitchen"
)

// Duration は枠種別ごとの予約時間を返す。
// 未知の種別は0を返す。
func (t SlotType) Duration() time.Duration {
	switch t {
	case SlotTypeBathroom:
		return 15 * time.Minute
	case SlotTypeKitchen:
		return time.Hour
	default:
		return 0
	}
}

// Valid は既知の枠種別かどうかを返す。
func (t SlotType) Valid() bool {
	return t == SlotTypeBathroom || t == SlotTypeKitchen
}

// ScheduleSlot は共有設備の予約枠を表す。
type ScheduleSlot struct {
	ID          string
	UserID      string
	ApartmentID string
	SlotType    SlotType
	StartTime   time.Time
	EndTime     time.Time
	CreatedAt   time.Time
}

// ScheduleSlotWithUser は予約枠に予約者のメールアドレスを結合した構造体。
// ダッシュボードおよび管理画面の表示用。
type ScheduleSlotWithUser struct {
	ScheduleSlot
	UserEmail string
}
