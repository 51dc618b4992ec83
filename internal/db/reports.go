package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdeskapp/labdesk/internal/models"
)

type ReportStore struct {
	pool *pgxpool.Pool
}

func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

func (s *ReportStore) Create(ctx context.Context, report *models.Report) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reports (id, order_id, file_key, file_name, uploaded_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		report.ID, report.OrderID, report.FileKey, report.FileName, report.UploadedBy,
	)
	if err := row.Scan(&report.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *ReportStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Report, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, order_id, file_key, file_name, uploaded_by, delivered, delivered_at, created_at
		FROM reports WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1`,
		orderID,
	)

	var (
		report      models.Report
		deliveredAt pgtype.Timestamptz
	)
	err := row.Scan(
		&report.ID, &report.OrderID, &report.FileKey, &report.FileName,
		&report.UploadedBy, &report.Delivered, &deliveredAt, &report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if deliveredAt.Valid {
		report.DeliveredAt = deliveredAt.Time
	}
	return &report, nil
}

// MarkDelivered flips the delivered flag once. Already-delivered
// reports are left untouched.
func (s *ReportStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports SET delivered = true, delivered_at = now()
		WHERE id = $1 AND delivered = false`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark report delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
