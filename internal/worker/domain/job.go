package domain

// TrainingJob is a claimed model row as the worker sees it.
type TrainingJob struct {
	ModelID      string
	Name         string
	DocumentKeys []string
	Attempts     int
}

// TrainingMessage is the queue payload published by the API service.
type TrainingMessage struct {
	ModelID string `json:"model_id"`
}

// Document is a fetched training document.
type Document struct {
	Key         string
	ContentType string
	Data        []byte
}
