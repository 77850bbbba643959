// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/roomsync/internal/model"
	"github.com/hitoshi/roomsync/internal/repository"
)

// Service はユーザー管理のサービス層。
// 退会処理とアパート割り当てのビジネスロジックを提供する。
type Service struct {
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	apartmentRepo repository.ApartmentRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	apartmentRepo repository.ApartmentRepository,
) *Service {
	return &Service{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		apartmentRepo: apartmentRepo,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: identities, schedule_slots）。
// チャットメッセージは送信者メールアドレスを記録した共同生活の記録として残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除（全デバイスからログアウト）
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. ユーザーを削除（identities, schedule_slotsはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

// AssignApartment はユーザーをアパートに割り当てる。管理者操作用。
// 割り当て先のアパートが存在しない場合はApartmentNotFoundエラー、
// 対象ユーザーが存在しない場合はUserNotFoundエラーになる。
func (s *Service) AssignApartment(ctx context.Context, userID, apartmentID string) error {
	// 予約済みの"admin"以外は実在するアパートのみ割り当て可能
	if apartmentID != model.AdminApartmentID {
		apartment, err := s.apartmentRepo.FindByID(ctx, apartmentID)
		if err != nil {
			return fmt.Errorf("アパートの取得に失敗しました: %w", err)
		}
		if apartment == nil {
			return model.NewApartmentNotFoundError(apartmentID)
		}
	}

	if err := s.userRepo.UpdateApartment(ctx, userID, apartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("アパート割り当ての更新に失敗しました: %w", err)
	}

	slog.Info("apartment assigned",
		slog.String("user_id", userID),
		slog.String("apartment_id", apartmentID),
	)

	return nil
}
