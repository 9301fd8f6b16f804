package domain

import (
	"errors"
)

const (
	ModelStatusTraining = "training"
	ModelStatusReady    = "ready"
	ModelStatusFailed   = "failed"
	ModelStatusUnknown  = "unknown"
)

const (
	DefaultModelID   = "default"
	DefaultModelName = "default_model"
)

// DefaultFields is the field list of the built-in model and of newly trained ones.
var DefaultFields = []string{"invoice_number", "date", "total_amount", "vendor", "due_date"}

var (
	ErrModelNotFound = errors.New("model not found")
	ErrModelNotReady = errors.New("model is not ready")
)
