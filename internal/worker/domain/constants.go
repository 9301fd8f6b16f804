package domain

// Model status constants
const (
	ModelStatusTraining = "training"
	ModelStatusReady    = "ready"
	ModelStatusFailed   = "failed"
)

// DefaultFields is the field list assigned to every trained model.
var DefaultFields = []string{"invoice_number", "date", "total_amount", "vendor", "due_date"}
