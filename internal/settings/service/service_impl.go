package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository

	mu        sync.RWMutex
	observers []domain.APIKeyObserver
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settings.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Subscribe(observer domain.APIKeyObserver) {
	if observer == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, observer)
	s.mu.Unlock()
}

func (s *Service) GetAPIKey(ctx context.Context) (string, error) {
	var key string
	found, err := s.load(ctx, domain.NameAPIKey, &key)
	if err != nil || !found {
		return "", err
	}
	return key, nil
}

// SaveAPIKey stores the sanitized key and returns it. Observers run only when
// the stored value changes.
func (s *Service) SaveAPIKey(ctx context.Context, apiKey string) (string, error) {
	sanitized := crm.SanitizeAPIKey(apiKey)
	if sanitized == "" {
		return "", domain.ErrEmptyAPIKey
	}

	previous, err := s.GetAPIKey(ctx)
	if err != nil {
		return "", err
	}
	if err := s.store(ctx, domain.NameAPIKey, sanitized); err != nil {
		return "", err
	}

	if previous != sanitized {
		s.log.Info("api key updated", zap.String("api_key", crm.MaskAPIKey(sanitized)))
		s.notify(ctx, previous, sanitized)
	}
	return sanitized, nil
}

func (s *Service) notify(ctx context.Context, oldKey, newKey string) {
	s.mu.RLock()
	observers := make([]domain.APIKeyObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.APIKeyChanged(ctx, oldKey, newKey)
	}
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if _, err := s.load(ctx, domain.NameSettings, &settings); err != nil {
		return domain.DefaultSettings(), err
	}
	return sanitize(settings), nil
}

// SaveSettings merges req over the defaults, sanitizes and stores the result.
func (s *Service) SaveSettings(ctx context.Context, req domain.UpdateSettingsRequest) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if req.DefaultCampaignID != nil {
		settings.DefaultCampaignID = *req.DefaultCampaignID
	}
	if req.EnableLogging != nil {
		settings.EnableLogging = *req.EnableLogging
	}
	if req.CacheDuration != nil {
		if *req.CacheDuration < 0 {
			return domain.Settings{}, fmt.Errorf("%w: cache_duration must not be negative", domain.ErrInvalidSettings)
		}
		settings.CacheDuration = *req.CacheDuration
	}

	settings = sanitize(settings)
	if err := s.store(ctx, domain.NameSettings, settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

func sanitize(in domain.Settings) domain.Settings {
	out := in
	out.DefaultCampaignID = strings.TrimSpace(in.DefaultCampaignID)
	switch {
	case out.CacheDuration == 0:
		out.CacheDuration = domain.DefaultCacheDuration
	case out.CacheDuration < domain.MinCacheDuration:
		out.CacheDuration = domain.MinCacheDuration
	case out.CacheDuration > domain.MaxCacheDuration:
		out.CacheDuration = domain.MaxCacheDuration
	}
	return out
}

func (s *Service) load(ctx context.Context, name string, dst any) (bool, error) {
	setting, err := s.repo.Get(ctx, s.db, name)
	if err != nil {
		return false, fmt.Errorf("load setting %s: %w", name, err)
	}
	if setting == nil || len(setting.Value) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(setting.Value, dst); err != nil {
		return false, fmt.Errorf("decode setting %s: %w", name, err)
	}
	return true, nil
}

func (s *Service) store(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.repo.Upsert(ctx, s.db, &domain.Setting{
		Name:      name,
		Value:     datatypes.JSON(raw),
		UpdatedAt: s.clock.Now(),
	})
}
