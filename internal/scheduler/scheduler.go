package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/connection"
	"github.com/smallbiznis/leadbridge/internal/crm"
	obsmetrics "github.com/smallbiznis/leadbridge/internal/observability/metrics"
	settingsdomain "github.com/smallbiznis/leadbridge/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKeyPrefix = "leadbridge:lock:scheduler:"

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")

	errSkipped = errors.New("job skipped")
)

const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeSkipped = "skipped"
)

type ConnectionChecker interface {
	Test(ctx context.Context, apiKey string) connection.Result
}

type CampaignRefresher interface {
	List(ctx context.Context) ([]crm.Campaign, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     Config
	Clock      clock.Clock
	GenID      *snowflake.Node
	Settings   settingsdomain.Service
	Connection ConnectionChecker
	Campaigns  CampaignRefresher
	Locker     *cache.Locker       `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Scheduler runs periodic maintenance that keeps the admin caches warm.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	genID      *snowflake.Node
	settings   settingsdomain.Service
	connection ConnectionChecker
	campaigns  CampaignRefresher
	locker     *cache.Locker
	metrics    *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Settings == nil || p.Connection == nil || p.Campaigns == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		genID:      p.GenID,
		settings:   p.Settings,
		connection: p.Connection,
		campaigns:  p.Campaigns,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, run := s.startRun(parent, name)

	if s.locker.Enabled() {
		token, ok, err := s.locker.TryLock(ctx, lockKeyPrefix+name, s.cfg.JobTimeout)
		if err != nil {
			s.logger(ctx).Warn("scheduler lock unavailable", zap.String("job", name), zap.Error(err))
		}
		if !ok {
			run.outcome = outcomeSkipped
			s.metrics.RecordJobRun(ctx, name, run.outcome, 0)
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKeyPrefix+name, token); err != nil {
				s.logger(ctx).Warn("release scheduler lock failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	s.logJobStart(ctx, run)
	err := fn(ctx)
	switch {
	case err == nil:
		run.outcome = outcomeOK
	case errors.Is(err, errSkipped):
		run.outcome = outcomeSkipped
		err = nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		run.outcome = outcomeTimeout
	default:
		run.outcome = outcomeError
	}
	s.metrics.RecordJobRun(ctx, name, run.outcome, s.clock.Now().Sub(run.startedAt))
	s.logJobFinish(ctx, run, err)

	// deadline is a soft timeout
	if run.outcome == outcomeTimeout || err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobConnectionCheck, s.ConnectionCheckJob},
		{JobCampaignWarmup, s.CampaignWarmupJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ConnectionCheckJob re-tests the stored API key. Results inside the
// connection cache window are served from cache.
func (s *Scheduler) ConnectionCheckJob(ctx context.Context) error {
	key, err := s.settings.GetAPIKey(ctx)
	if err != nil {
		return err
	}
	if key == "" {
		return errSkipped
	}

	res := s.connection.Test(ctx, key)
	if !res.Success {
		s.logger(ctx).Warn("stored api key failed connection check",
			zap.String("code", res.Code),
			zap.String("message", res.Message),
			zap.Bool("cached", res.Cached),
		)
	}
	return ctx.Err()
}

// CampaignWarmupJob refreshes the campaign catalog cache.
func (s *Scheduler) CampaignWarmupJob(ctx context.Context) error {
	key, err := s.settings.GetAPIKey(ctx)
	if err != nil {
		return err
	}
	if key == "" {
		return errSkipped
	}

	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return err
	}
	s.logger(ctx).Debug("campaign catalog refreshed", zap.Int("campaigns", len(campaigns)))
	return nil
}
