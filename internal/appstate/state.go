package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/invoice-ocr/internal/client"
)

const (
	KeyAPIKey       = "api_key"
	KeyTheme        = "theme"
	KeyCachedModels = "cached_models"
)

// Theme is the presentation theme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ErrInvalidTheme is returned when a theme other than light or dark is set.
var ErrInvalidTheme = errors.New("theme must be light or dark")

// ParseTheme validates s as a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}

// State is the application state shared by the client commands.
type State struct {
	storage Storage
}

func New(storage Storage) *State {
	return &State{storage: storage}
}

// Storage returns the underlying port.
func (s *State) Storage() Storage {
	return s.storage
}

// APIKey returns the saved API key, or "" when none is set.
func (s *State) APIKey(ctx context.Context) (string, error) {
	v, _, err := s.storage.Get(ctx, KeyAPIKey)
	return v, err
}

func (s *State) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key must not be empty")
	}
	return s.storage.Set(ctx, KeyAPIKey, key)
}

func (s *State) ClearAPIKey(ctx context.Context) error {
	return s.storage.Remove(ctx, KeyAPIKey)
}

// Theme returns the saved theme, defaulting to light.
func (s *State) Theme(ctx context.Context) (Theme, error) {
	v, ok, err := s.storage.Get(ctx, KeyTheme)
	if err != nil {
		return "", err
	}
	if !ok {
		return ThemeLight, nil
	}
	t, err := ParseTheme(v)
	if err != nil {
		return ThemeLight, nil
	}
	return t, nil
}

func (s *State) SetTheme(ctx context.Context, theme string) error {
	t, err := ParseTheme(theme)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, KeyTheme, string(t))
}

// CachedModels returns the last model list saved with CacheModels.
func (s *State) CachedModels(ctx context.Context) ([]client.Model, error) {
	v, ok, err := s.storage.Get(ctx, KeyCachedModels)
	if err != nil || !ok {
		return nil, err
	}

	var models []client.Model
	if err := json.Unmarshal([]byte(v), &models); err != nil {
		return nil, fmt.Errorf("failed to decode cached models: %w", err)
	}
	return models, nil
}

func (s *State) CacheModels(ctx context.Context, models []client.Model) error {
	data, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to encode models: %w", err)
	}
	return s.storage.Set(ctx, KeyCachedModels, string(data))
}
