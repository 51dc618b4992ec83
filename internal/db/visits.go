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

type VisitStore struct {
	pool *pgxpool.Pool
}

func NewVisitStore(pool *pgxpool.Pool) *VisitStore {
	return &VisitStore{pool: pool}
}

const visitColumns = `id, order_id, scheduled_date, time_slot, status, agent_id, notes, otp,
	collected_at, created_at, updated_at`

// Create inserts the visit. The order_id column carries a unique
// constraint, so a second visit for the same order fails.
func (s *VisitStore) Create(ctx context.Context, visit *models.HomeVisit) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO home_visits (id, order_id, scheduled_date, time_slot, status, notes, otp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		visit.ID, visit.OrderID, visit.ScheduledDate, visit.TimeSlot,
		string(visit.Status), visit.Notes, visit.OTP,
	)
	if err := row.Scan(&visit.CreatedAt, &visit.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert home visit: %w", err)
	}
	return nil
}

func (s *VisitStore) GetByID(ctx context.Context, id uuid.UUID) (*models.HomeVisit, error) {
	return s.getOne(ctx, `SELECT `+visitColumns+` FROM home_visits WHERE id = $1`, id)
}

func (s *VisitStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.HomeVisit, error) {
	return s.getOne(ctx, `SELECT `+visitColumns+` FROM home_visits WHERE order_id = $1`, orderID)
}

func (s *VisitStore) getOne(ctx context.Context, query string, arg any) (*models.HomeVisit, error) {
	visit, err := scanVisit(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get home visit: %w", err)
	}
	return visit, nil
}

// ListForAgent returns the agent's visits, soonest first.
func (s *VisitStore) ListForAgent(ctx context.Context, agentID uuid.UUID) ([]*models.HomeVisit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+visitColumns+` FROM home_visits WHERE agent_id = $1 ORDER BY scheduled_date, time_slot`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent visits: %w", err)
	}
	defer rows.Close()

	var visits []*models.HomeVisit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan home visit: %w", err)
		}
		visits = append(visits, visit)
	}
	return visits, rows.Err()
}

// AssignAgent sets the agent only when none is assigned yet. Zero rows
// affected means the visit is missing or already has an agent.
func (s *VisitStore) AssignAgent(ctx context.Context, id, agentID uuid.UUID, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE home_visits
		SET agent_id = $1, notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END, updated_at = now()
		WHERE id = $3 AND agent_id IS NULL`,
		agentID, notes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to assign agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves the visit from expected to next atomically.
// Completion stamps collected_at.
func (s *VisitStore) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.VisitStatus) error {
	query := `UPDATE home_visits SET status = $1, updated_at = now()`
	if next == models.VisitCompleted {
		query += `, collected_at = now()`
	}
	query += ` WHERE id = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query, string(next), id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update visit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVisit(row pgx.Row) (*models.HomeVisit, error) {
	var (
		visit       models.HomeVisit
		status      string
		agentID     pgtype.UUID
		collectedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&visit.ID, &visit.OrderID, &visit.ScheduledDate, &visit.TimeSlot,
		&status, &agentID, &visit.Notes, &visit.OTP,
		&collectedAt, &visit.CreatedAt, &visit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	visit.Status = models.VisitStatus(status)
	if agentID.Valid {
		id := uuid.UUID(agentID.Bytes)
		visit.AgentID = &id
	}
	if collectedAt.Valid {
		visit.CollectedAt = collectedAt.Time
	}
	return &visit, nil
}
