package client

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
)

const (
	// MinModelNameLength is the shortest accepted training model name.
	MinModelNameLength = 2
	// MinDescriptionLength is the shortest accepted training description.
	MinDescriptionLength = 10
)

// OpenDocument reads path and sniffs its content type.
func OpenDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	return &Document{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// DocumentType returns the media type of doc without parameters, sniffing
// the content when no type was declared.
func DocumentType(doc *Document) string {
	declared := doc.ContentType
	if declared == "" {
		declared = mimetype.Detect(doc.Data).String()
	}

	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mediaType
}

// ValidateDocument rejects missing, empty and unsupported documents.
func ValidateDocument(field string, doc *Document) error {
	if doc == nil {
		return newValidationError(field, nil, "is required")
	}
	if len(doc.Data) == 0 {
		return newValidationError(field, doc.Name, "is empty")
	}

	contentType := DocumentType(doc)
	if !dto.IsAcceptedContentType(contentType) {
		return newValidationError(field, contentType, "only PDF, JPEG, JPG, and PNG files are supported")
	}
	return nil
}

// ValidateTraining checks a training submission before any request is made.
func ValidateTraining(name, description string, docs []*Document) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < MinModelNameLength {
		return newValidationError("name", name, fmt.Sprintf("must be at least %d characters", MinModelNameLength))
	}
	if utf8.RuneCountInString(strings.TrimSpace(description)) < MinDescriptionLength {
		return newValidationError("description", description, fmt.Sprintf("must be at least %d characters", MinDescriptionLength))
	}
	if len(docs) == 0 {
		return newValidationError("documents", 0, "at least one file is required for training")
	}

	for i, doc := range docs {
		if err := ValidateDocument(fmt.Sprintf("documents[%d]", i), doc); err != nil {
			return err
		}
	}
	return nil
}
