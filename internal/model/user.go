// Package model はドメインモデルを定義する。
package model

import "time"

// AdminApartmentID は住宅管理スタッフを示す予約済みapartment_id。
const AdminApartmentID = "admin"

// User はサービス利用ユーザー（入居者または管理スタッフ）を表す。
// ApartmentIDが空のユーザーは未割り当て状態で、チャット接続は拒否される。
type User struct {
	ID          string
	Email       string
	Name        string
	ApartmentID string // 例: "apt123"。未割り当ての場合は空文字列
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin は管理スタッフかどうかを返す。
// apartment_idに "admin" が割り当てられたユーザーを管理者として扱う。
func (u *User) IsAdmin() bool {
	return u.ApartmentID == AdminApartmentID
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
