package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/roomsync/internal/model"
)

// pqUniqueViolation はPostgreSQLのunique_violationエラーコード。
const pqUniqueViolation = "23505"

// PostgresApartmentRepo はPostgreSQLを使用したアパートリポジトリ。
type PostgresApartmentRepo struct {
	db *sql.DB
}

// NewPostgresApartmentRepo はPostgresApartmentRepoを生成する。
func NewPostgresApartmentRepo(db *sql.DB) *PostgresApartmentRepo {
	return &PostgresApartmentRepo{db: db}
}

// Create はアパートを作成する。apartment_idが重複する場合は
// model.NewDuplicateApartmentErrorを返す。
func (r *PostgresApartmentRepo) Create(ctx context.Context, apartment *model.Apartment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO apartments (apartment_id, created_at)
		 VALUES ($1, $2)`,
		apartment.ApartmentID, apartment.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return model.NewDuplicateApartmentError(apartment.ApartmentID)
		}
		return fmt.Errorf("failed to create apartment: %w", err)
	}
	return nil
}

// FindByID は指定apartment_idのアパートを取得する。見つからない場合はnilを返す。
func (r *PostgresApartmentRepo) FindByID(ctx context.Context, apartmentID string) (*model.Apartment, error) {
	apartment := &model.Apartment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT apartment_id, created_at
		 FROM apartments
		 WHERE apartment_id = $1`,
		apartmentID,
	).Scan(&apartment.ApartmentID, &apartment.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find apartment: %w", err)
	}

	return apartment, nil
}

// List は全アパートをapartment_id昇順で返す。
func (r *PostgresApartmentRepo) List(ctx context.Context) ([]*model.Apartment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT apartment_id, created_at
		 FROM apartments
		 ORDER BY apartment_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list apartments: %w", err)
	}
	defer rows.Close()

	var apartments []*model.Apartment
	for rows.Next() {
		apartment := &model.Apartment{}
		if err := rows.Scan(&apartment.ApartmentID, &apartment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan apartment: %w", err)
		}
		apartments = append(apartments, apartment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate apartments: %w", err)
	}

	return apartments, nil
}

// compile-time interface check
var _ ApartmentRepository = (*PostgresApartmentRepo)(nil)
