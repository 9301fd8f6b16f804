package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/invoice-ocr/internal/poller"
	"github.com/cuongbtq/invoice-ocr/shared/logger"
)

var (
	pdfData  = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	pngData  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	textData = []byte("just some plain text")
)

func newTestClient(t *testing.T, baseURL, apiKey string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 2 * time.Second,
		Logger:  logger.NewDiscard().Logger,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// countingServer wraps h and counts the requests it receives.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

// unreachableURL returns the address of a server that has already shut down.
func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, c.BaseURL())
		assert.Equal(t, defaultTimeout, c.httpClient.Timeout)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := New(Config{BaseURL: "http://ocr.local/api/"})
		require.NoError(t, err)
		assert.Equal(t, "http://ocr.local/api", c.BaseURL())
	})

	t.Run("invalid base URL", func(t *testing.T) {
		_, err := New(Config{BaseURL: "not a url"})
		assert.Error(t, err)
	})
}

func TestSubmitExtraction_RejectsUnsupportedTypeWithoutRequest(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"extracted_data": map[string]string{"a": "b"}})
	})
	c := newTestClient(t, srv.URL, "")

	job, err := c.SubmitExtraction(context.Background(), &Document{
		Name:        "notes.txt",
		ContentType: "text/plain",
		Data:        textData,
	}, "default")

	require.Error(t, err)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrValidation)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "document", vErr.Field)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSubmitExtraction_SniffsUndeclaredType(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestClient(t, srv.URL, "")

	_, err := c.SubmitExtraction(context.Background(), &Document{Name: "notes", Data: textData}, "")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSubmitExtraction_BackendUnavailable(t *testing.T) {
	c := newTestClient(t, unreachableURL(t), "")

	job, err := c.SubmitExtraction(context.Background(), &Document{
		Name:        "invoice.pdf",
		ContentType: "application/pdf",
		Data:        pdfData,
	}, "default")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	require.NotNil(t, job)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Empty(t, job.Fields)
	assert.Empty(t, job.ErrorMessage)
	assert.False(t, ResultOf(err).Success)
}

func TestSubmitExtraction_Success(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extract", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "custom-model", r.FormValue("modelId"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "invoice.pdf", hdr.Filename)
		assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"extracted_data": map[string]string{
				"invoice_number": "INV-1234-A",
				"vendor":         "Acme Corp",
			},
		})
	})
	c := newTestClient(t, srv.URL, "secret-key")

	job, err := c.SubmitExtraction(context.Background(), &Document{
		Name:        "invoice.pdf",
		ContentType: "application/pdf",
		Data:        pdfData,
	}, "custom-model")

	require.NoError(t, err)
	assert.Equal(t, JobStatusSucceeded, job.Status)
	assert.Equal(t, "INV-1234-A", job.Fields["invoice_number"])
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, "invoice.pdf", job.DocumentRef)
	assert.Equal(t, "custom-model", job.ModelID)
}

func TestSubmitExtraction_DefaultsModelID(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultModelID, r.FormValue("modelId"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"extracted_data": map[string]string{"date": "01/02/2024"}})
	})
	c := newTestClient(t, srv.URL, "")

	job, err := c.SubmitExtraction(context.Background(), &Document{Name: "scan.png", Data: pngData}, "  ")

	require.NoError(t, err)
	assert.Equal(t, DefaultModelID, job.ModelID)
	assert.Equal(t, JobStatusSucceeded, job.Status)
}

func TestSubmitExtraction_TerminalOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        interface{}
		wantStatus  JobStatus
		wantKind    error
		wantMessage string
	}{
		{
			name:        "error reported in extracted data",
			status:      http.StatusOK,
			body:        map[string]interface{}{"extracted_data": map[string]string{"error": "Model x not found"}},
			wantStatus:  JobStatusFailed,
			wantMessage: "Model x not found",
		},
		{
			name:        "empty error reported in extracted data",
			status:      http.StatusOK,
			body:        map[string]interface{}{"extracted_data": map[string]string{"error": ""}},
			wantStatus:  JobStatusFailed,
			wantMessage: UnspecifiedExtractionError,
		},
		{
			name:        "no fields",
			status:      http.StatusOK,
			body:        map[string]interface{}{"extracted_data": map[string]string{}},
			wantStatus:  JobStatusFailed,
			wantMessage: "no fields extracted",
		},
		{
			name:        "non-2xx response",
			status:      http.StatusNotFound,
			body:        map[string]interface{}{"success": false, "error": "Model x not found"},
			wantStatus:  JobStatusFailed,
			wantKind:    ErrRequestFailed,
			wantMessage: "backend responded with status 404",
		},
		{
			name:        "contract violation",
			status:      http.StatusOK,
			body:        map[string]interface{}{"extracted_data": 42},
			wantStatus:  JobStatusFailed,
			wantKind:    ErrUnknown,
			wantMessage: "response does not match contract",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c := newTestClient(t, srv.URL, "")

			job, err := c.SubmitExtraction(context.Background(), &Document{
				Name:        "invoice.pdf",
				ContentType: "application/pdf",
				Data:        pdfData,
			}, "x")

			require.NotNil(t, job)
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.NotEmpty(t, job.ErrorMessage)
			assert.Contains(t, job.ErrorMessage, tt.wantMessage)
			assert.Empty(t, job.Fields)
			if tt.wantKind == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantKind)
			}
		})
	}
}

func TestSubmitExtraction_RequestFailedCarriesStatusAndBody(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})
	c := newTestClient(t, srv.URL, "")

	_, err := c.SubmitExtraction(context.Background(), &Document{
		Name:        "invoice.pdf",
		ContentType: "application/pdf",
		Data:        pdfData,
	}, "")

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusInternalServerError, clientErr.StatusCode)
	assert.Equal(t, "upstream exploded", clientErr.Body)
	assert.Equal(t, "request_failed", ResultOf(err).Kind)
}

func TestSubmitExtraction_CancelledContext(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestClient(t, srv.URL, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := c.SubmitExtraction(ctx, &Document{
		Name:        "invoice.pdf",
		ContentType: "application/pdf",
		Data:        pdfData,
	}, "")

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, JobStatusPending, job.Status)
}

func TestSubmitTraining_ValidationWithoutRequest(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestClient(t, srv.URL, "")

	pdf := &Document{Name: "a.pdf", ContentType: "application/pdf", Data: pdfData}
	txt := &Document{Name: "a.txt", ContentType: "text/plain", Data: textData}

	tests := []struct {
		name        string
		modelName   string
		description string
		docs        []*Document
		wantField   string
	}{
		{"short name", "a", "long enough description", []*Document{pdf}, "name"},
		{"blank name", "   ", "long enough description", []*Document{pdf}, "name"},
		{"short description", "model", "too short", []*Document{pdf}, "description"},
		{"no documents", "model", "long enough description", nil, "documents"},
		{"empty documents", "model", "long enough description", []*Document{}, "documents"},
		{"bad document type", "model", "long enough description", []*Document{pdf, txt}, "documents[1]"},
		{"nil document", "model", "long enough description", []*Document{nil}, "documents[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := c.SubmitTraining(context.Background(), tt.modelName, tt.description, tt.docs)

			assert.Nil(t, job)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.Equal(t, "validation", ResultOf(err).Kind)
		})
	}

	assert.Equal(t, int32(0), calls.Load())
}

func TestSubmitTraining_Success(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/train", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Invoices", r.FormValue("name"))
		assert.Equal(t, "Vendor invoices from 2024", r.FormValue("description"))

		files := r.MultipartForm.File["training_files"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.pdf", files[0].Filename)
		assert.Equal(t, "image/png", files[1].Header.Get("Content-Type"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"modelName": "Invoices",
			"modelId":   "2b0f0c44-5a9e-4bb8-9d4e-7f6a0fd4a111",
		})
	})
	c := newTestClient(t, srv.URL, "")

	job, err := c.SubmitTraining(context.Background(), "Invoices", "Vendor invoices from 2024", []*Document{
		{Name: "a.pdf", ContentType: "application/pdf", Data: pdfData},
		{Name: "b.png", Data: pngData},
	})

	require.NoError(t, err)
	assert.Equal(t, "2b0f0c44-5a9e-4bb8-9d4e-7f6a0fd4a111", job.ModelID)
	assert.Equal(t, TrainingStatusTraining, job.Status)
	assert.Equal(t, []string{"a.pdf", "b.png"}, job.TrainingDocuments)
}

func TestSubmitTraining_MissingModelID(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})
	c := newTestClient(t, srv.URL, "")

	job, err := c.SubmitTraining(context.Background(), "Invoices", "Vendor invoices from 2024", []*Document{
		{Name: "a.pdf", ContentType: "application/pdf", Data: pdfData},
	})

	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestListModels(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"models": []map[string]string{
				{"id": "m1", "name": "One", "createdAt": "2024-03-01T10:00:00Z", "status": "ready"},
				{"id": "m2", "name": "Two", "createdAt": "2024-03-02T11:30:00.123456", "status": "training"},
				{"id": "m3", "name": "Three", "createdAt": "yesterday"},
			},
		})
	})
	c := newTestClient(t, srv.URL, "")

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 3)

	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), models[0].CreatedAt)
	assert.Equal(t, TrainingStatusReady, models[0].Status)
	assert.Equal(t, 2024, models[1].CreatedAt.Year())
	assert.True(t, models[2].CreatedAt.IsZero())
}

func TestListModels_ContractViolation(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": []string{}})
	})
	c := newTestClient(t, srv.URL, "")

	_, err := c.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, "unknown", ResultOf(err).Kind)
}

func TestModelStatus(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/m1/status":
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		case "/models/weird/status":
			writeJSON(w, http.StatusOK, map[string]string{"status": "exploding"})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		}
	})
	c := newTestClient(t, srv.URL, "")

	status, err := c.ModelStatus(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, TrainingStatusReady, status)

	status, err = c.ModelStatus(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, TrainingStatusUnknown, status)

	_, err = c.ModelStatus(context.Background(), "weird")
	assert.ErrorIs(t, err, ErrUnknown)

	_, err = c.ModelStatus(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHealth(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	assert.NoError(t, newTestClient(t, srv.URL, "").Health(context.Background()))
	assert.ErrorIs(t, newTestClient(t, unreachableURL(t), "").Health(context.Background()), ErrBackendUnavailable)
}

func TestTrainingQuerier(t *testing.T) {
	statuses := map[string]string{
		"training": "training",
		"ready":    "ready",
		"failed":   "failed",
		"unknown":  "unknown",
	}
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/models/") : len(r.URL.Path)-len("/status")]
		writeJSON(w, http.StatusOK, map[string]string{"status": statuses[id]})
	})
	q := newTestClient(t, srv.URL, "").TrainingQuerier()

	tests := []struct {
		handle  string
		want    poller.Observation
		wantErr bool
	}{
		{"training", poller.ObservationPending, false},
		{"ready", poller.ObservationSucceeded, false},
		{"failed", poller.ObservationFailed, false},
		{"unknown", poller.ObservationPending, true},
	}
	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			obs, err := q.Query(context.Background(), tt.handle)
			assert.Equal(t, tt.want, obs)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrainingQuerier_DrivesPoller(t *testing.T) {
	reports := []string{"training", "training", "ready"}
	var calls atomic.Int32
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(reports) {
			n = len(reports) - 1
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": reports[n]})
	})
	c := newTestClient(t, srv.URL, "")

	p := poller.New(c.TrainingQuerier(), poller.Config{Interval: 5 * time.Millisecond, Logger: logger.NewDiscard().Logger})
	updates, err := p.Start(context.Background(), "m1")
	require.NoError(t, err)

	var last poller.Update
	for u := range updates {
		last = u
	}

	assert.Equal(t, poller.StateSucceeded, last.State)
	assert.Equal(t, 3, last.Attempt)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}
