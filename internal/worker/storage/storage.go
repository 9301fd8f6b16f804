package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/invoice-ocr/internal/worker/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimTraining counts a delivery attempt against a model still in training.
// It returns domain.ErrModelNotTraining when the row is missing or terminal.
func (s *Storage) ClaimTraining(ctx context.Context, modelID string) (*domain.TrainingJob, error) {
	query := `
		UPDATE models
		SET attempts = attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = $2
		RETURNING id, name, document_keys, attempts
	`

	var (
		job  domain.TrainingJob
		keys string
	)
	err := s.db.QueryRowContext(ctx, query, modelID, domain.ModelStatusTraining).Scan(
		&job.ModelID,
		&job.Name,
		&keys,
		&job.Attempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim model - not found or no longer training",
				slog.String("model_id", modelID),
			)
			return nil, domain.ErrModelNotTraining
		}
		return nil, fmt.Errorf("failed to claim model: %w", err)
	}

	if keys != "" {
		if err := json.Unmarshal([]byte(keys), &job.DocumentKeys); err != nil {
			return nil, fmt.Errorf("%w: bad document_keys: %v", domain.ErrInvalidDocument, err)
		}
	}

	s.logger.Info("Model claimed for training",
		slog.String("model_id", job.ModelID),
		slog.Int("attempts", job.Attempts),
	)

	return &job, nil
}

// CompleteTraining moves a training model to ready with its field list.
func (s *Storage) CompleteTraining(ctx context.Context, modelID string, fields []string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `
		UPDATE models
		SET status = $1,
		    fields = $2,
		    error_message = '',
		    updated_at = NOW()
		WHERE id = $3
		  AND status = $4
	`

	return s.finish(ctx, query, modelID, domain.ModelStatusReady, string(data), modelID, domain.ModelStatusTraining)
}

// FailTraining moves a training model to failed.
func (s *Storage) FailTraining(ctx context.Context, modelID, errorMsg string) error {
	query := `
		UPDATE models
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $3
		  AND status = $4
	`

	return s.finish(ctx, query, modelID, domain.ModelStatusFailed, errorMsg, modelID, domain.ModelStatusTraining)
}

func (s *Storage) finish(ctx context.Context, query, modelID, status string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, append([]interface{}{status}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update model status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrModelNotTraining
	}

	s.logger.Info("Model status updated",
		slog.String("model_id", modelID),
		slog.String("status", status),
	)
	return nil
}

// Heartbeat touches updated_at of a model that is still training.
func (s *Storage) Heartbeat(ctx context.Context, modelID string) error {
	query := `
		UPDATE models
		SET updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, modelID, domain.ModelStatusTraining)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Warn("Heartbeat update - no rows affected (model may not be training)",
			slog.String("model_id", modelID),
		)
	}

	return nil
}
