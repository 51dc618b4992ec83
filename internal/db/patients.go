package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdeskapp/labdesk/internal/models"
)

type PatientStore struct {
	pool *pgxpool.Pool
}

func NewPatientStore(pool *pgxpool.Pool) *PatientStore {
	return &PatientStore{pool: pool}
}

// UpsertByEmail creates or refreshes the patient identified by email.
// Checkout calls this so returning patients keep one record.
func (s *PatientStore) UpsertByEmail(ctx context.Context, patient *models.Patient) error {
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}

	addressJSON, err := json.Marshal(patient.Address)
	if err != nil {
		return fmt.Errorf("failed to encode address: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO patients (id, role, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address
		RETURNING id, created_at`,
		patient.ID, string(patient.Role), patient.Name, patient.Email, patient.Phone, addressJSON,
	)
	if err := row.Scan(&patient.ID, &patient.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert patient: %w", err)
	}
	return nil
}

func (s *PatientStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	return s.getOne(ctx, `SELECT id, role, name, email, phone, address, created_at FROM patients WHERE id = $1`, id)
}

func (s *PatientStore) GetByEmail(ctx context.Context, email string) (*models.Patient, error) {
	return s.getOne(ctx, `SELECT id, role, name, email, phone, address, created_at FROM patients WHERE email = $1`, email)
}

func (s *PatientStore) getOne(ctx context.Context, query string, arg any) (*models.Patient, error) {
	var (
		patient     models.Patient
		role        string
		addressJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&patient.ID, &role, &patient.Name, &patient.Email, &patient.Phone,
		&addressJSON, &patient.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	patient.Role = models.UserRole(role)
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &patient.Address); err != nil {
			return nil, fmt.Errorf("failed to decode address: %w", err)
		}
	}
	return &patient, nil
}

// ListAgents returns users with the agent role.
func (s *PatientStore) ListAgents(ctx context.Context) ([]*models.Patient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, name, email, phone, address, created_at FROM patients WHERE role = $1 ORDER BY name`,
		string(models.RoleAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Patient
	for rows.Next() {
		var (
			agent       models.Patient
			role        string
			addressJSON []byte
		)
		if err := rows.Scan(&agent.ID, &role, &agent.Name, &agent.Email, &agent.Phone, &addressJSON, &agent.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agent.Role = models.UserRole(role)
		if len(addressJSON) > 0 {
			if err := json.Unmarshal(addressJSON, &agent.Address); err != nil {
				return nil, fmt.Errorf("failed to decode address: %w", err)
			}
		}
		agents = append(agents, &agent)
	}
	return agents, rows.Err()
}
