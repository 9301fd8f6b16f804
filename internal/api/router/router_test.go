package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/invoice-ocr/internal/api/domain"
	"github.com/cuongbtq/invoice-ocr/internal/api/handler"
	"github.com/cuongbtq/invoice-ocr/internal/api/model"
	"github.com/cuongbtq/invoice-ocr/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type emptyStore struct{}

func (emptyStore) CreateModel(context.Context, *model.Model) error { return nil }
func (emptyStore) GetModel(context.Context, string) (*model.Model, error) {
	return nil, domain.ErrModelNotFound
}
func (emptyStore) ListModels(context.Context) ([]model.Model, error) { return nil, nil }
func (emptyStore) MarkFailed(context.Context, string, string) error  { return nil }

func newRouter(opts Options) *gin.Engine {
	return SetupRouter(&handler.Dependencies{
		Logger:  logger.NewDiscard().Logger,
		Storage: emptyStore{},
	}, opts)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouter_HealthRoutes(t *testing.T) {
	r := newRouter(Options{APIKeys: []string{"secret"}})

	for _, path := range []string{"/health", "/api/health"} {
		rr := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	}
}

func TestRouter_RequestIDIsPropagated(t *testing.T) {
	r := newRouter(Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rr := serve(r, req)
	assert.Equal(t, "req-42", rr.Header().Get(requestIDHeader))
}

func TestRouter_APIKey(t *testing.T) {
	r := newRouter(Options{APIKeys: []string{" secret ", ""}})

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "Authorization", "Basic secret", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer secret", http.StatusOK},
		{"lowercase bearer", "Authorization", "bearer secret", http.StatusOK},
		{"header", "X-API-Key", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := serve(r, req)
			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"success":false,"error":"Invalid or missing API key"}`, rr.Body.String())
			}
		})
	}
}

func TestRouter_NoKeysConfiguredIsOpen(t *testing.T) {
	r := newRouter(Options{})

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"models":[]}`, rr.Body.String())

	rr = serve(r, httptest.NewRequest(http.MethodGet, "/api/models/abc/status", nil))
	assert.JSONEq(t, `{"status":"unknown"}`, rr.Body.String())
}

func TestRouter_UploadRateLimit(t *testing.T) {
	r := newRouter(Options{UploadRate: 0.001, UploadBurst: 1})

	newReq := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(""))
	}

	// The first request consumes the burst and fails validation on its own.
	first := serve(r, newReq())
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := serve(r, newReq())
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/models", nil)).Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newRouter(Options{})

	rr := serve(r, httptest.NewRequest(http.MethodOptions, "/api/extract", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ocr_extractions_total 1\n"))
	})
	r := newRouter(Options{MetricsHandler: metrics, APIKeys: []string{"secret"}})

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ocr_extractions_total")

	rr = serve(newRouter(Options{}), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
