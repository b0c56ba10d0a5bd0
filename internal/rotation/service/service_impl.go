package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/observability/metrics"
	"github.com/smallbiznis/leadbridge/internal/rotation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockKeyPrefix = "leadbridge:lock:rotation:"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Clock   clock.Clock
	GenID   *snowflake.Node
	Repo    domain.Repository
	Mutex   *cache.KeyedMutex
	Locker  *cache.Locker    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    domain.Repository
	mutex   *cache.KeyedMutex
	locker  *cache.Locker
	metrics *metrics.Metrics
	lockTTL time.Duration
}

func New(p Params) domain.Service {
	mutex := p.Mutex
	if mutex == nil {
		mutex = cache.NewKeyedMutex()
	}
	lockTTL := p.Config.Rotation.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("rotation.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    p.Repo,
		mutex:   mutex,
		locker:  p.Locker,
		metrics: p.Metrics,
		lockTTL: lockTTL,
	}
}

// SelectNext returns the next campaign for formID in round-robin order.
// A single campaign is returned without touching stored state.
func (s *Service) SelectNext(ctx context.Context, campaignIDs []string, formID string) (string, *domain.CampaignRotationState, error) {
	ids := normalizeIDs(campaignIDs)
	if len(ids) == 0 {
		return "", nil, domain.ErrNoCampaigns
	}
	if len(ids) == 1 {
		return ids[0], nil, nil
	}

	formID = strings.TrimSpace(formID)
	if formID == "" {
		return "", nil, domain.ErrInvalidFormID
	}
	formKey := domain.FormKey(formID)

	unlock := s.mutex.Lock(formKey)
	defer unlock()

	if s.locker.Enabled() {
		lockKey := lockKeyPrefix + formKey
		token, ok, err := s.locker.Lock(ctx, lockKey, s.lockTTL, s.lockTTL)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", domain.ErrRotationBusy, err)
		}
		if !ok {
			return "", nil, domain.ErrRotationBusy
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.log.Warn("release rotation lock failed", zap.String("form_key", formKey), zap.Error(err))
			}
		}()
	}

	var (
		selected string
		result   domain.CampaignRotationState
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.loadForUpdate(ctx, tx, formKey, ids)
		if err != nil {
			return err
		}

		if !state.Matches(ids) {
			s.log.Info("campaign list changed, rotation reset",
				zap.String("form_key", formKey),
				zap.Int("campaigns", len(ids)),
			)
			state.Reset(ids)
		}

		selected = state.Advance(s.clock.Now())
		if err := s.repo.Save(ctx, tx, state); err != nil {
			return err
		}
		result = *state
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("select campaign: %w", err)
	}

	s.metrics.RecordRotationSelected(ctx, selected)
	s.log.Debug("campaign selected",
		zap.String("form_key", formKey),
		zap.String("campaign_id", selected),
		zap.Int("index", result.LastUsedIndex),
		zap.Int64("total_leads_routed", result.TotalLeadsRouted),
	)
	return selected, &result, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, formKey string, ids []string) (*domain.CampaignRotationState, error) {
	state, err := s.repo.FindByFormKey(ctx, tx, formKey, true)
	if err != nil || state != nil {
		return state, err
	}

	now := s.clock.Now()
	fresh := &domain.CampaignRotationState{
		ID:        s.genID.Generate(),
		FormKey:   formKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fresh.Reset(ids)
	if err := s.repo.InsertIfAbsent(ctx, tx, fresh); err != nil {
		return nil, err
	}

	// Another writer may have won the insert.
	state, err = s.repo.FindByFormKey(ctx, tx, formKey, true)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrRotationBusy
	}
	return state, nil
}

func (s *Service) Get(ctx context.Context, formID string) (*domain.CampaignRotationState, error) {
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return nil, domain.ErrInvalidFormID
	}
	state, err := s.repo.FindByFormKey(ctx, s.db, domain.FormKey(formID), false)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrNotFound
	}
	return state, nil
}

// Reset drops stored state so the next selection starts at the first campaign.
func (s *Service) Reset(ctx context.Context, formID string) error {
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return domain.ErrInvalidFormID
	}
	formKey := domain.FormKey(formID)

	unlock := s.mutex.Lock(formKey)
	defer unlock()

	deleted, err := s.repo.DeleteByFormKey(ctx, s.db, formKey)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.log.Info("rotation reset", zap.String("form_key", formKey))
	return nil
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
