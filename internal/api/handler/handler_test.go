package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/invoice-ocr/internal/api/domain"
	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
	"github.com/cuongbtq/invoice-ocr/internal/api/model"
	"github.com/cuongbtq/invoice-ocr/shared/logger"
)

var (
	pdfData  = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	pngData  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	textData = []byte("just some notes, not an invoice")
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeModelStore struct {
	mu      sync.Mutex
	models  map[string]*model.Model
	order   []string
	getErr  error
	failed  map[string]string
	created int
}

func newFakeModelStore(models ...*model.Model) *fakeModelStore {
	s := &fakeModelStore{models: map[string]*model.Model{}, failed: map[string]string{}}
	for _, m := range models {
		s.models[m.ID] = m
		s.order = append(s.order, m.ID)
	}
	return s
}

func (s *fakeModelStore) CreateModel(_ context.Context, m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[m.ID] = m
	s.order = append(s.order, m.ID)
	s.created++
	return nil
}

func (s *fakeModelStore) GetModel(_ context.Context, id string) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	m, ok := s.models[id]
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return m, nil
}

func (s *fakeModelStore) ListModels(context.Context) ([]model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Model, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.models[id])
	}
	return out, nil
}

func (s *fakeModelStore) MarkFailed(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.models[id]; ok && m.Status == domain.ModelStatusTraining {
		m.Status = domain.ModelStatusFailed
		m.ErrorMessage = message
	}
	s.failed[id] = message
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	bodies [][]byte
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

// echoExtractor returns each field name as its own value.
type echoExtractor struct{ err error }

func (e echoExtractor) Extract(_ context.Context, _ []byte, fields []string) (map[string]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = "value of " + f
	}
	return out, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *countingRecorder) RecordExtraction(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type testEnv struct {
	store     *fakeModelStore
	blobs     *fakeBlobs
	publisher *fakePublisher
	metrics   *countingRecorder
	engine    *gin.Engine
}

func defaultModel() *model.Model {
	return &model.Model{
		ID:        domain.DefaultModelID,
		Name:      "Default Invoice Model",
		Status:    domain.ModelStatusReady,
		Fields:    model.EncodeList(domain.DefaultFields),
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newTestEnv(t *testing.T, models ...*model.Model) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     newFakeModelStore(models...),
		blobs:     newFakeBlobs(),
		publisher: &fakePublisher{},
		metrics:   &countingRecorder{},
	}

	h := NewHandler(&Dependencies{
		Logger:    logger.NewDiscard().Logger,
		Storage:   env.store,
		Blobs:     env.blobs,
		Publisher: env.publisher,
		Extractor: echoExtractor{},
		Metrics:   env.metrics,
	})

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/models", h.ListModels)
	r.GET("/models/:model_id/status", h.ModelStatus)
	r.POST("/extract", h.Extract)
	r.POST("/train", h.Train)
	env.engine = r
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	return rr
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"ocr-api-service"}`, rr.Body.String())
}

func TestHealth_DependencyDown(t *testing.T) {
	h := NewHandler(&Dependencies{
		Logger:      logger.NewDiscard().Logger,
		HealthCheck: func(context.Context) error { return errors.New("db down") },
		ServiceName: "ocr-test",
	})
	r := gin.New()
	r.GET("/health", h.Health)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"unhealthy","service":"ocr-test"}`, rr.Body.String())
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t, defaultModel())

	rr := env.do(httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp dto.ListModelsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
	assert.Equal(t, dto.ModelDTO{
		ID:        "default",
		Name:      "Default Invoice Model",
		CreatedAt: "2024-01-02T03:04:05Z",
		Status:    "ready",
	}, resp.Models[0])
}

func TestListModels_Empty(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"models":[]}`, rr.Body.String())
}

func TestModelStatus(t *testing.T) {
	training := &model.Model{ID: "m-1", Status: domain.ModelStatusTraining}
	env := newTestEnv(t, defaultModel(), training)

	tests := []struct {
		id   string
		want string
	}{
		{"default", "ready"},
		{"m-1", "training"},
		{"missing", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			rr := env.do(httptest.NewRequest(http.MethodGet, "/models/"+tt.id+"/status", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `{"status":"`+tt.want+`"}`, rr.Body.String())
		})
	}
}

func TestModelStatus_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.store.getErr = errors.New("connection refused")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/models/m-1/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestExtract_Success(t *testing.T) {
	env := newTestEnv(t, defaultModel())

	req := multipartRequest(t, "/extract", nil, filePart{dto.FieldFile, "invoice.pdf", pdfData})
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp dto.ExtractResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.ExtractedData, len(domain.DefaultFields))
	assert.Equal(t, "value of vendor", resp.ExtractedData["vendor"])
	assert.Equal(t, []string{OutcomeSucceeded}, env.metrics.outcomes)
}

func TestExtract_UsesModelFields(t *testing.T) {
	custom := &model.Model{ID: "receipts", Status: domain.ModelStatusReady, Fields: model.EncodeList([]string{"store", "total"})}
	env := newTestEnv(t, custom)

	req := multipartRequest(t, "/extract", map[string]string{dto.FieldModelID: "receipts"},
		filePart{dto.FieldFile, "receipt.png", pngData})
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp dto.ExtractResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, map[string]string{"store": "value of store", "total": "value of total"}, resp.ExtractedData)
}

func TestExtract_Rejections(t *testing.T) {
	training := &model.Model{ID: "m-1", Status: domain.ModelStatusTraining}

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/extract", map[string]string{dto.FieldModelID: "default"})
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No file provided",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader("{}"))
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No file provided",
		},
		{
			name: "empty filename",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/extract", nil, filePart{dto.FieldFile, "", pdfData})
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Empty filename",
		},
		{
			name: "unknown model",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/extract", map[string]string{dto.FieldModelID: "nope"},
					filePart{dto.FieldFile, "a.pdf", pdfData})
			},
			wantStatus: http.StatusNotFound,
			wantError:  "Model nope not found",
		},
		{
			name: "model not ready",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/extract", map[string]string{dto.FieldModelID: "m-1"},
					filePart{dto.FieldFile, "a.pdf", pdfData})
			},
			wantStatus: http.StatusConflict,
			wantError:  "Model m-1 is not ready (status: training)",
		},
		{
			name: "unsupported type",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/extract", nil, filePart{dto.FieldFile, "notes.pdf", textData})
			},
			wantStatus: http.StatusUnsupportedMediaType,
		},
		{
			name: "empty file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/extract", nil, filePart{dto.FieldFile, "a.pdf", nil})
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Empty file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultModel(), training)

			rr := env.do(tt.req(t))
			assert.Equal(t, tt.wantStatus, rr.Code)
			msg := decodeError(t, rr)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, msg)
			}
			assert.Equal(t, []string{OutcomeRejected}, env.metrics.outcomes)
		})
	}
}

func TestExtract_ExtractorFailure(t *testing.T) {
	env := newTestEnv(t, defaultModel())
	h := NewHandler(&Dependencies{
		Logger:    logger.NewDiscard().Logger,
		Storage:   env.store,
		Extractor: echoExtractor{err: errors.New("boom")},
	})
	r := gin.New()
	r.POST("/extract", h.Extract)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, multipartRequest(t, "/extract", nil, filePart{dto.FieldFile, "a.pdf", pdfData}))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Extraction failed", decodeError(t, rr))
}

func TestTrain_Success(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/train",
		map[string]string{dto.FieldName: "Receipts", dto.FieldDescription: "Store receipts from 2024"},
		filePart{dto.FieldTrainingFiles, "a.pdf", pdfData},
		filePart{dto.FieldTrainingFiles, "scans/b.png", pngData},
	)
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp dto.TrainResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Receipts", resp.ModelName)
	require.NotEmpty(t, resp.ModelID)

	m := env.store.models[resp.ModelID]
	require.NotNil(t, m)
	assert.Equal(t, domain.ModelStatusTraining, m.Status)
	assert.Equal(t, "Store receipts from 2024", m.Description)

	wantKeys := []string{
		"training/" + resp.ModelID + "/0-a.pdf",
		"training/" + resp.ModelID + "/1-b.png",
	}
	keys, err := m.DocumentKeyList()
	require.NoError(t, err)
	assert.Equal(t, wantKeys, keys)
	assert.Equal(t, wantKeys, env.blobs.keys())

	require.Len(t, env.publisher.bodies, 1)
	assert.JSONEq(t, `{"model_id":"`+resp.ModelID+`"}`, string(env.publisher.bodies[0]))
}

func TestTrain_DefaultName(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(multipartRequest(t, "/train", nil, filePart{dto.FieldTrainingFiles, "a.pdf", pdfData}))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp dto.TrainResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, domain.DefaultModelName, resp.ModelName)
}

func TestTrain_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		files      []filePart
		wantStatus int
		wantError  string
	}{
		{"no files", nil, http.StatusBadRequest, "No files provided"},
		{"only empty files", []filePart{{dto.FieldTrainingFiles, "a.pdf", nil}}, http.StatusBadRequest, "No valid files provided"},
		{"unsupported type", []filePart{
			{dto.FieldTrainingFiles, "a.pdf", pdfData},
			{dto.FieldTrainingFiles, "notes.txt", textData},
		}, http.StatusUnsupportedMediaType, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rr := env.do(multipartRequest(t, "/train", map[string]string{dto.FieldName: "x"}, tt.files...))
			assert.Equal(t, tt.wantStatus, rr.Code)
			msg := decodeError(t, rr)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, msg)
			}
			assert.Zero(t, env.store.created)
			assert.Empty(t, env.blobs.keys())
			assert.Empty(t, env.publisher.bodies)
		})
	}
}

func TestTrain_PublishFailureMarksModelFailed(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker unreachable")

	rr := env.do(multipartRequest(t, "/train", nil, filePart{dto.FieldTrainingFiles, "a.pdf", pdfData}))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Training queue unavailable", decodeError(t, rr))

	require.Equal(t, 1, env.store.created)
	for _, m := range env.store.models {
		assert.Equal(t, domain.ModelStatusFailed, m.Status)
	}
}

func TestTrain_UploadFailureCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.blobs.putErr = errors.New("bucket missing")

	rr := env.do(multipartRequest(t, "/train", nil,
		filePart{dto.FieldTrainingFiles, "a.pdf", pdfData},
		filePart{dto.FieldTrainingFiles, "b.pdf", pdfData},
	))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Zero(t, env.store.created)
	assert.Empty(t, env.publisher.bodies)
	assert.Len(t, env.blobs.deleted, 2)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "a.pdf", baseName("a.pdf"))
	assert.Equal(t, "b.png", baseName(`C:\scans\b.png`))
	assert.Equal(t, "c.pdf", baseName("../../c.pdf"))
	assert.Equal(t, "document", baseName(".."))
}
