// Package extractor produces simulated field values for an uploaded document.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Vendors are the names the simulation picks from for the vendor field.
var Vendors = []string{
	"Acme Corp",
	"TechSupplies Inc",
	"Office Solutions",
	"Global Services",
	"Metro Vendors",
}

// ErrEmptyDocument is returned for a document without content.
var ErrEmptyDocument = errors.New("document is empty")

// Simulated fills every requested field with a plausible value.
// It is safe for concurrent use.
type Simulated struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulated creates an extractor drawing from src. A nil src uses a
// randomly seeded generator.
func NewSimulated(src rand.Source) *Simulated {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Simulated{rnd: rand.New(src)}
}

// Extract returns a value for each of fields.
func (s *Simulated) Extract(ctx context.Context, data []byte, fields []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(fields))
	for _, field := range fields {
		out[field] = s.value(field)
	}
	return out, nil
}

func (s *Simulated) value(field string) string {
	switch field {
	case "invoice_number":
		return fmt.Sprintf("INV-%d-%c", s.between(1000, 9999), 'A'+rune(s.rnd.IntN(26)))
	case "date":
		return s.date(s.between(2022, 2025))
	case "total_amount":
		return fmt.Sprintf("$%d.%02d", s.between(10, 1000), s.between(0, 99))
	case "vendor":
		return Vendors[s.rnd.IntN(len(Vendors))]
	case "due_date":
		return s.date(2025)
	default:
		return "Sample " + titleCase(strings.ReplaceAll(field, "_", " "))
	}
}

func (s *Simulated) date(year int) string {
	return fmt.Sprintf("%02d/%02d/%d", s.between(1, 12), s.between(1, 28), year)
}

// between returns a value in [lo, hi].
func (s *Simulated) between(lo, hi int) int {
	return lo + s.rnd.IntN(hi-lo+1)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
