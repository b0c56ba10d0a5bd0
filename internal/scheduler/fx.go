package scheduler

import (
	"context"

	"github.com/smallbiznis/leadbridge/internal/campaign"
	"github.com/smallbiznis/leadbridge/internal/connection"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(
		fx.Annotate(
			func(t *connection.Tester) *connection.Tester { return t },
			fx.As(new(ConnectionChecker)),
		),
		fx.Annotate(
			func(c *campaign.Catalog) *campaign.Catalog { return c },
			fx.As(new(CampaignRefresher)),
		),
	),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
