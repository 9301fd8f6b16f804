// Package history keeps a local log of extraction results and exports it.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/invoice-ocr/internal/appstate"
	"github.com/cuongbtq/invoice-ocr/internal/client"
)

const storageKey = "history"

// DateLayout is the format of Filter.Date.
const DateLayout = "2006-01-02"

// Record is one finished extraction.
type Record struct {
	ID           string            `json:"id"`
	DocumentRef  string            `json:"documentRef"`
	ModelID      string            `json:"modelId"`
	Status       client.JobStatus  `json:"status"`
	Fields       map[string]string `json:"fields,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// FromJob builds a record from an extraction job resolved at now.
func FromJob(job *client.ExtractionJob, now time.Time) Record {
	return Record{
		ID:           uuid.NewString(),
		DocumentRef:  job.DocumentRef,
		ModelID:      job.ModelID,
		Status:       job.Status,
		Fields:       job.Fields,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    now.UTC(),
	}
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Date    string // YYYY-MM-DD, compared in UTC
	ModelID string
	Status  client.JobStatus
}

// Validate checks the date format.
func (f Filter) Validate() error {
	if f.Date == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, f.Date); err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", f.Date)
	}
	return nil
}

func (f Filter) matches(r Record) bool {
	if f.Date != "" && r.CreatedAt.UTC().Format(DateLayout) != f.Date {
		return false
	}
	if f.ModelID != "" && r.ModelID != f.ModelID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Store persists records as one JSON document in an appstate.Storage.
// Appends go through Storage.Update, so processes sharing a state database
// never lose each other's records.
type Store struct {
	storage appstate.Storage
}

func NewStore(storage appstate.Storage) *Store {
	return &Store{storage: storage}
}

// Append adds r, assigning an id and timestamp when missing.
func (s *Store) Append(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	err := s.storage.Update(ctx, storageKey, func(current string, ok bool) (string, error) {
		records, err := decode(current, ok)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(append(records, r))
		if err != nil {
			return "", fmt.Errorf("failed to encode history: %w", err)
		}
		return string(data), nil
	})
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	return s.storage.Remove(ctx, storageKey)
}

func (s *Store) load(ctx context.Context) ([]Record, error) {
	v, ok, err := s.storage.Get(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return decode(v, ok)
}

func decode(v string, ok bool) ([]Record, error) {
	if !ok || v == "" {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal([]byte(v), &records); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return records, nil
}
