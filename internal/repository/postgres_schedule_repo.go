package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/roomsync/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用した設備予約枠リポジトリ。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// Create は予約枠を作成する。
func (r *PostgresScheduleRepo) Create(ctx context.Context, slot *model.ScheduleSlot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schedule_slots (id, user_id, apartment_id, slot_type, start_time, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		slot.ID, slot.UserID, slot.ApartmentID, string(slot.SlotType), slot.StartTime, slot.EndTime, slot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule slot: %w", err)
	}
	return nil
}

// FindByID は指定IDの予約枠を取得する。見つからない場合はnilを返す。
func (r *PostgresScheduleRepo) FindByID(ctx context.Context, id string) (*model.ScheduleSlot, error) {
	slot := &model.ScheduleSlot{}
	var slotType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, apartment_id, slot_type, start_time, end_time, created_at
		 FROM schedule_slots
		 WHERE id = $1`,
		id,
	).Scan(&slot.ID, &slot.UserID, &slot.ApartmentID, &slotType, &slot.StartTime, &slot.EndTime, &slot.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule slot: %w", err)
	}

	slot.SlotType = model.SlotType(slotType)
	return slot, nil
}

// HasConflict は同一アパート内で[start, end)と重複する他ユーザーの予約が存在するかを返す。
// 重複判定: 既存枠が新枠の終了前に始まり、新枠の開始後に終わる場合に重複とみなす。
func (r *PostgresScheduleRepo) HasConflict(ctx context.Context, apartmentID, excludeUserID string, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM schedule_slots
		   WHERE apartment_id = $1
		     AND user_id <> $2
		     AND start_time < $4
		     AND end_time > $3
		 )`,
		apartmentID, excludeUserID, start, end,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slot conflict: %w", err)
	}
	return exists, nil
}

// ListByApartmentAndRange は指定アパートの[start, end)に開始する予約枠を
// 開始時刻昇順で予約者メール付きで返す。
func (r *PostgresScheduleRepo) ListByApartmentAndRange(ctx context.Context, apartmentID string, start, end time.Time) ([]*model.ScheduleSlotWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.apartment_id, s.slot_type, s.start_time, s.end_time, s.created_at, u.email
		 FROM schedule_slots s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.apartment_id = $1
		   AND s.start_time >= $2
		   AND s.start_time < $3
		 ORDER BY s.start_time`,
		apartmentID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule slots: %w", err)
	}
	defer rows.Close()

	return scanSlotsWithUser(rows)
}

// ListAll は全アパートの予約枠を開始時刻昇順で予約者メール付きで返す。
func (r *PostgresScheduleRepo) ListAll(ctx context.Context) ([]*model.ScheduleSlotWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.apartment_id, s.slot_type, s.start_time, s.end_time, s.created_at, u.email
		 FROM schedule_slots s
		 JOIN users u ON u.id = s.user_id
		 ORDER BY s.start_time`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all schedule slots: %w", err)
	}
	defer rows.Close()

	return scanSlotsWithUser(rows)
}

// DeleteByIDAndUser は指定IDかつ指定ユーザー所有の予約枠を削除する。
// 削除された場合はtrueを返す。
func (r *PostgresScheduleRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM schedule_slots WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// scanSlotsWithUser は予約者メール付き予約枠の行をスキャンする。
func scanSlotsWithUser(rows *sql.Rows) ([]*model.ScheduleSlotWithUser, error) {
	var slots []*model.ScheduleSlotWithUser
	for rows.Next() {
		slot := &model.ScheduleSlotWithUser{}
		var slotType string
		if err := rows.Scan(&slot.ID, &slot.UserID, &slot.ApartmentID, &slotType,
			&slot.StartTime, &slot.EndTime, &slot.CreatedAt, &slot.UserEmail); err != nil {
			return nil, fmt.Errorf("failed to scan schedule slot: %w", err)
		}
		slot.SlotType = model.SlotType(slotType)
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedule slots: %w", err)
	}
	return slots, nil
}

// compile-time interface check
var _ ScheduleSlotRepository = (*PostgresScheduleRepo)(nil)
