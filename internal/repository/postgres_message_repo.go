package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/roomsync/internal/model"
)

// pqForeignKeyViolation はPostgreSQLのforeign_key_violationエラーコード。
const pqForeignKeyViolation = "23503"

// PostgresMessageRepo はPostgreSQLを使用したチャットメッセージリポジトリ（Message Store）。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はチャットメッセージを作成する。単一INSERTのため部分書き込みは発生しない。
// apartment_idのFK違反はmodel.ErrApartmentNotFoundにマッピングする。
// created_atは呼び出し側が採番したサーバー時刻をそのまま記録する。
func (r *PostgresMessageRepo) Create(ctx context.Context, apartmentID, authorEmail, body string, createdAt time.Time) (*model.ChatMessage, error) {
	msg := &model.ChatMessage{
		ID:          uuid.New().String(),
		ApartmentID: apartmentID,
		AuthorEmail: authorEmail,
		Body:        body,
		CreatedAt:   createdAt,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, apartment_id, author_email, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ApartmentID, msg.AuthorEmail, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
			return nil, fmt.Errorf("apartment %q: %w", apartmentID, model.ErrApartmentNotFound)
		}
		return nil, fmt.Errorf("failed to create chat message: %w", err)
	}

	return msg, nil
}

// ListRecentByApartment は指定アパートの直近メッセージを新しい順で最大limit件返す。
func (r *PostgresMessageRepo) ListRecentByApartment(ctx context.Context, apartmentID string, limit int) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, apartment_id, author_email, body, created_at
		 FROM chat_messages
		 WHERE apartment_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		apartmentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.ChatMessage
	for rows.Next() {
		msg := &model.ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.ApartmentID, &msg.AuthorEmail, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	return messages, nil
}

// compile-time interface check
var _ ChatMessageRepository = (*PostgresMessageRepo)(nil)
