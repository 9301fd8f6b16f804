package appstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/invoice-ocr/internal/client"
)

func TestState_APIKey(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryStorage())

	key, err := s.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	assert.Error(t, s.SetAPIKey(ctx, "   "))
	require.NoError(t, s.SetAPIKey(ctx, "  sk-123  "))

	key, err = s.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", key)

	require.NoError(t, s.ClearAPIKey(ctx))
	key, err = s.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestState_Theme(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := New(storage)

	theme, err := s.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	require.NoError(t, s.SetTheme(ctx, "DARK"))
	theme, err = s.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	err = s.SetTheme(ctx, "solarized")
	assert.ErrorIs(t, err, ErrInvalidTheme)

	require.NoError(t, storage.Set(ctx, KeyTheme, "garbage"))
	theme, err = s.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)
}

func TestState_CachedModels(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := New(storage)

	models, err := s.CachedModels(ctx)
	require.NoError(t, err)
	assert.Nil(t, models)

	want := []client.Model{
		{ID: "default", Name: "Default", Status: client.TrainingStatusReady, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "m2", Name: "Custom", Status: client.TrainingStatusTraining},
	}
	require.NoError(t, s.CacheModels(ctx, want))

	models, err = s.CachedModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, models)

	require.NoError(t, storage.Set(ctx, KeyCachedModels, "{not json"))
	_, err = s.CachedModels(ctx)
	assert.Error(t, err)
}
