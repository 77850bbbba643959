// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/roomsync/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateApartment はユーザーのアパート割り当てを更新する。
	// 対象ユーザーが存在しない場合はsql.ErrNoRowsを返す。
	UpdateApartment(ctx context.Context, userID, apartmentID string) error

	// ListByApartment は指定アパートに割り当てられたユーザー一覧を返す。
	ListByApartment(ctx context.Context, apartmentID string) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、schedule_slotsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ApartmentRepository はアパートデータの永続化インターフェース。
type ApartmentRepository interface {
	// Create はアパートを作成する。apartment_idが重複する場合は
	// model.NewDuplicateApartmentErrorを返す。
	Create(ctx context.Context, apartment *model.Apartment) error

	// FindByID は指定apartment_idのアパートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, apartmentID string) (*model.Apartment, error)

	// List は全アパートをapartment_id昇順で返す。
	List(ctx context.Context) ([]*model.Apartment, error)
}

// ChatMessageRepository はチャットメッセージの永続化インターフェース（Message Store）。
type ChatMessageRepository interface {
	// Create はチャットメッセージを作成する。部分書き込みは発生しない。
	// apartment_idが既知のアパートに解決できない場合はmodel.ErrApartmentNotFoundを
	// ラップしたエラーを返す。
	Create(ctx context.Context, apartmentID, authorEmail, body string, createdAt time.Time) (*model.ChatMessage, error)

	// ListRecentByApartment は指定アパートの直近メッセージを新しい順で最大limit件返す。
	// 表示用に古い順へ並べ替えるのは呼び出し側の責務。
	ListRecentByApartment(ctx context.Context, apartmentID string, limit int) ([]*model.ChatMessage, error)
}

// ScheduleSlotRepository は設備予約枠の永続化インターフェース。
type ScheduleSlotRepository interface {
	// Create は予約枠を作成する。
	Create(ctx context.Context, slot *model.ScheduleSlot) error

	// FindByID は指定IDの予約枠を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ScheduleSlot, error)

	// HasConflict は同一アパート内で[start, end)と重複する他ユーザーの予約が
	// 存在するかを返す。重複判定は start_time < end AND end_time > start。
	HasConflict(ctx context.Context, apartmentID, excludeUserID string, start, end time.Time) (bool, error)

	// ListByApartmentAndRange は指定アパートの[start, end)に開始する予約枠を
	// 開始時刻昇順で予約者メール付きで返す。
	ListByApartmentAndRange(ctx context.Context, apartmentID string, start, end time.Time) ([]*model.ScheduleSlotWithUser, error)

	// ListAll は全アパートの予約枠を開始時刻昇順で予約者メール付きで返す。
	// 管理ダッシュボード用。
	ListAll(ctx context.Context) ([]*model.ScheduleSlotWithUser, error)

	// DeleteByIDAndUser は指定IDかつ指定ユーザー所有の予約枠を削除する。
	// 削除された場合はtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
