// Package schedule は共有設備予約のドメインロジックを提供する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomsync/internal/model"
	"github.com/hitoshi/roomsync/internal/repository"
)

// Service は設備予約のサービス層。
// 予約作成、日次一覧取得、キャンセルのビジネスロジックを提供する。
type Service struct {
	slotRepo repository.ScheduleSlotRepository
	userRepo repository.UserRepository

	// now はテストで差し替えられる現在時刻の供給元。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	slotRepo repository.ScheduleSlotRepository,
	userRepo repository.UserRepository,
) *Service {
	return &Service{
		slotRepo: slotRepo,
		userRepo: userRepo,
		now:      time.Now,
	}
}

// CreateSlot は共有設備の予約枠を作成する。
// 終了時刻は枠種別の固定時間（浴室15分、キッチン1時間）から算出する。
// 過去の開始時刻、未知の枠種別、同一アパート内の他ユーザーの予約との
// 時間帯重複はエラーになる。
func (s *Service) CreateSlot(ctx context.Context, userID string, slotType string, startTime time.Time) (*model.ScheduleSlot, error) {
	user, err := s.resolveResident(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := model.SlotType(slotType)
	if !st.Valid() {
		return nil, model.NewInvalidSlotTypeError(slotType)
	}

	if startTime.Before(s.now()) {
		return nil, model.NewSlotInPastError()
	}

	endTime := startTime.Add(st.Duration())

	// 重複判定: start_time < 新end AND end_time > 新start。
	// 自分自身の既存予約との重複は許容する。
	conflict, err := s.slotRepo.HasConflict(ctx, user.ApartmentID, userID, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("予約の重複確認に失敗しました: %w", err)
	}
	if conflict {
		return nil, model.NewSlotConflictError()
	}

	slot := &model.ScheduleSlot{
		ID:          uuid.New().String(),
		UserID:      userID,
		ApartmentID: user.ApartmentID,
		SlotType:    st,
		StartTime:   startTime,
		EndTime:     endTime,
		CreatedAt:   s.now(),
	}

	if err := s.slotRepo.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("予約の作成に失敗しました: %w", err)
	}

	slog.Info("schedule slot created",
		slog.String("slot_id", slot.ID),
		slog.String("apartment_id", slot.ApartmentID),
		slog.String("slot_type", string(slot.SlotType)),
	)

	return slot, nil
}

// ListSlotsForDay は利用者のアパートにおける指定日の予約枠を
// 開始時刻昇順で予約者メール付きで返す。
func (s *Service) ListSlotsForDay(ctx context.Context, userID string, day time.Time) ([]*model.ScheduleSlotWithUser, error) {
	user, err := s.resolveResident(ctx, userID)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	slots, err := s.slotRepo.ListByApartmentAndRange(ctx, user.ApartmentID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}

	return slots, nil
}

// CancelSlot は自分の予約枠をキャンセルする。
// 他ユーザーの予約や存在しない予約の指定はSlotNotFoundエラーになる。
func (s *Service) CancelSlot(ctx context.Context, userID, slotID string) error {
	deleted, err := s.slotRepo.DeleteByIDAndUser(ctx, slotID, userID)
	if err != nil {
		return fmt.Errorf("予約の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewSlotNotFoundError(slotID)
	}

	slog.Info("schedule slot cancelled",
		slog.String("slot_id", slotID),
		slog.String("user_id", userID),
	)

	return nil
}

// ListAllSlots は全アパートの予約枠を開始時刻昇順で返す。管理画面用。
func (s *Service) ListAllSlots(ctx context.Context) ([]*model.ScheduleSlotWithUser, error) {
	slots, err := s.slotRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("全予約一覧の取得に失敗しました: %w", err)
	}
	return slots, nil
}

// resolveResident はユーザーを取得し、アパートに割り当て済みであることを確認する。
func (s *Service) resolveResident(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.ApartmentID == "" {
		return nil, model.NewNoApartmentError()
	}
	return user, nil
}
