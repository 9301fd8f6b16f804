package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/invoice-ocr/internal/api/domain"
	"github.com/cuongbtq/invoice-ocr/internal/api/model"
)

const modelColumns = `
	id, name, description, status, fields, document_keys,
	error_message, attempts, created_at, updated_at`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) CreateModel(ctx context.Context, m *model.Model) error {
	query := `
		INSERT INTO models (
			id, name, description, status, fields, document_keys,
			error_message, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		m.ID,
		m.Name,
		m.Description,
		m.Status,
		m.Fields,
		m.DocumentKeys,
		m.ErrorMessage,
		m.Attempts,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	return nil
}

// GetModel returns domain.ErrModelNotFound when no row matches.
func (s *Storage) GetModel(ctx context.Context, id string) (*model.Model, error) {
	var m model.Model
	query := `SELECT` + modelColumns + `
		FROM models
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &m, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	return &m, nil
}

// ListModels returns every model, newest first.
func (s *Storage) ListModels(ctx context.Context) ([]model.Model, error) {
	query := `SELECT` + modelColumns + `
		FROM models
		ORDER BY created_at DESC, id DESC
	`

	var models []model.Model
	if err := s.db.SelectContext(ctx, &models, query); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	return models, nil
}

// MarkFailed fails a model that is still training. Terminal rows are left untouched.
func (s *Storage) MarkFailed(ctx context.Context, id, message string) error {
	query := `
		UPDATE models
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	_, err := s.db.ExecContext(ctx, query, domain.ModelStatusFailed, message, id, domain.ModelStatusTraining)
	if err != nil {
		return fmt.Errorf("failed to mark model failed: %w", err)
	}

	return nil
}
