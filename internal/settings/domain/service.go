package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrEmptyAPIKey       = errors.New("empty_api_key")
	ErrInvalidSettings   = errors.New("invalid_settings")
	ErrSettingsNotLoaded = errors.New("settings_not_loaded")
)

// APIKeyObserver is told when the stored API key changes value.
type APIKeyObserver interface {
	APIKeyChanged(ctx context.Context, oldKey, newKey string)
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, name string) (*Setting, error)
	Upsert(ctx context.Context, db *gorm.DB, setting *Setting) error
}

type Service interface {
	GetAPIKey(ctx context.Context) (string, error)
	SaveAPIKey(ctx context.Context, apiKey string) (string, error)
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, req UpdateSettingsRequest) (Settings, error)
	Subscribe(observer APIKeyObserver)
}
