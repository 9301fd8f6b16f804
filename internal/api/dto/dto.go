// Package dto holds the wire types of the OCR backend contract, shared by
// the API service and the HTTP client.
package dto

// ModelDTO is a model as listed by GET /models.
type ModelDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Status      string `json:"status"`
}

type ListModelsResponse struct {
	Models []ModelDTO `json:"models"`
}

type ModelStatusResponse struct {
	Status string `json:"status"`
}

type ExtractResponse struct {
	Success       bool              `json:"success"`
	ExtractedData map[string]string `json:"extracted_data"`
}

type TrainResponse struct {
	Success   bool   `json:"success"`
	ModelName string `json:"modelName"`
	ModelID   string `json:"modelId"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// TrainingMessage is the RabbitMQ payload announcing a new training job.
type TrainingMessage struct {
	ModelID string `json:"model_id"`
}

// AcceptedContentTypes lists the document media types accepted for
// extraction and training by every component of the system.
var AcceptedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
}

// IsAcceptedContentType reports whether mediaType, without parameters, is accepted.
func IsAcceptedContentType(mediaType string) bool {
	_, ok := AcceptedContentTypes[mediaType]
	return ok
}

// Multipart field names of the upload endpoints.
const (
	FieldFile          = "file"
	FieldModelID       = "modelId"
	FieldName          = "name"
	FieldDescription   = "description"
	FieldTrainingFiles = "training_files"
)
