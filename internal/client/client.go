// Package client implements the job submission side of the OCR backend
// contract: health, model listing, extraction and training submission, and
// training status queries.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
)

const (
	// DefaultBaseURL points at a locally running API service.
	DefaultBaseURL = "http://localhost:5000/api"
	// DefaultModelID is used when an extraction names no model.
	DefaultModelID = "default"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4096
)

// Config holds client settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the OCR backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	schemas    *responseSchemas
}

// New creates a client. An empty BaseURL falls back to DefaultBaseURL.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		schemas:    schemas,
	}, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health sends GET /health and succeeds on any 2xx response.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/health", nil, "")
	return err
}

// ListModels sends GET /models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	const op = "list models"

	body, err := c.do(ctx, op, http.MethodGet, "/models", nil, "")
	if err != nil {
		return nil, err
	}

	var resp dto.ListModelsResponse
	if err := decodeChecked(c.schemas.models, body, &resp); err != nil {
		return nil, &Error{Kind: ErrUnknown, Op: op, Err: err}
	}

	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			CreatedAt:   parseTimestamp(m.CreatedAt),
			Status:      TrainingStatus(m.Status),
		})
	}
	return models, nil
}

// ModelStatus sends GET /models/{id}/status.
func (c *Client) ModelStatus(ctx context.Context, modelID string) (TrainingStatus, error) {
	const op = "model status"

	if strings.TrimSpace(modelID) == "" {
		return "", newValidationError("model_id", modelID, "is required")
	}

	body, err := c.do(ctx, op, http.MethodGet, "/models/"+url.PathEscape(modelID)+"/status", nil, "")
	if err != nil {
		return "", err
	}

	var resp dto.ModelStatusResponse
	if err := decodeChecked(c.schemas.status, body, &resp); err != nil {
		return "", &Error{Kind: ErrUnknown, Op: op, Err: err}
	}
	return TrainingStatus(resp.Status), nil
}

// SubmitExtraction uploads doc for extraction with the given model.
//
// Validation failures return a nil job. When the backend is unreachable the
// returned job is still PENDING. Any response from the backend resolves the
// job: SUCCEEDED with fields, or FAILED with an error message.
func (c *Client) SubmitExtraction(ctx context.Context, doc *Document, modelID string) (*ExtractionJob, error) {
	const op = "submit extraction"

	if err := ValidateDocument("document", doc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultModelID
	}

	job := &ExtractionJob{
		DocumentRef: doc.Name,
		ModelID:     modelID,
		Status:      JobStatusPending,
	}

	body, contentType, err := buildMultipart(func(w *multipart.Writer) error {
		if err := writeDocumentPart(w, dto.FieldFile, doc); err != nil {
			return err
		}
		return w.WriteField(dto.FieldModelID, modelID)
	})
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Op: op, Err: err}
	}

	c.logger.Debug("Submitting extraction",
		slog.String("document", doc.Name),
		slog.String("model_id", modelID),
	)

	respBody, err := c.do(ctx, op, http.MethodPost, "/extract", body, contentType)
	if err != nil {
		var clientErr *Error
		if errors.As(err, &clientErr) && clientErr.Kind == ErrRequestFailed {
			job.Fail(fmt.Sprintf("backend responded with status %d: %s", clientErr.StatusCode, clientErr.Body))
		}
		return job, err
	}

	var resp dto.ExtractResponse
	if err := decodeChecked(c.schemas.extract, respBody, &resp); err != nil {
		job.Fail(err.Error())
		return job, &Error{Kind: ErrUnknown, Op: op, Err: err}
	}

	// Legacy backends report per-document failures inside extracted_data.
	if msg, ok := resp.ExtractedData["error"]; ok && len(resp.ExtractedData) == 1 {
		job.Fail(msg)
		return job, nil
	}
	if len(resp.ExtractedData) == 0 {
		job.Fail("no fields extracted")
		return job, nil
	}

	job.Succeed(resp.ExtractedData)
	return job, nil
}

// SubmitTraining uploads docs to train a new model and returns the
// TRAINING job identified by the assigned model id.
func (c *Client) SubmitTraining(ctx context.Context, name, description string, docs []*Document) (*TrainingJob, error) {
	const op = "submit training"

	if err := ValidateTraining(name, description, docs); err != nil {
		return nil, err
	}

	refs := make([]string, len(docs))
	body, contentType, err := buildMultipart(func(w *multipart.Writer) error {
		if err := w.WriteField(dto.FieldName, name); err != nil {
			return err
		}
		if err := w.WriteField(dto.FieldDescription, description); err != nil {
			return err
		}
		for i, doc := range docs {
			refs[i] = doc.Name
			if err := writeDocumentPart(w, dto.FieldTrainingFiles, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Op: op, Err: err}
	}

	c.logger.Debug("Submitting training",
		slog.String("name", name),
		slog.Int("documents", len(docs)),
	)

	respBody, err := c.do(ctx, op, http.MethodPost, "/train", body, contentType)
	if err != nil {
		return nil, err
	}

	var resp dto.TrainResponse
	if err := decodeChecked(c.schemas.train, respBody, &resp); err != nil {
		return nil, &Error{Kind: ErrUnknown, Op: op, Err: err}
	}

	return &TrainingJob{
		ModelID:           resp.ModelID,
		Name:              name,
		Description:       description,
		TrainingDocuments: refs,
		Status:            TrainingStatusTraining,
	}, nil
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := ErrBackendUnavailable
		if errors.Is(err, context.Canceled) {
			kind = ErrUnknown
		}
		return nil, &Error{Kind: kind, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrBackendUnavailable, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(respBody))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		c.logger.Debug("Backend request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
		)
		return nil, &Error{Kind: ErrRequestFailed, Op: op, StatusCode: resp.StatusCode, Body: text}
	}

	return respBody, nil
}

func buildMultipart(fill func(w *multipart.Writer) error) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := fill(w); err != nil {
		return nil, "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeDocumentPart writes doc as a file part carrying its real content type.
func writeDocumentPart(w *multipart.Writer, field string, doc *Document) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(doc.Name)))
	h.Set("Content-Type", DocumentType(doc))

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(doc.Data)
	return err
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO form some backends emit.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
