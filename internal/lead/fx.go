package lead

import (
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	"github.com/smallbiznis/leadbridge/internal/lead/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lead.service",
	fx.Provide(
		newBuilder,
		fx.Annotate(
			func(h *config.FormConfigHolder) *config.FormConfigHolder { return h },
			fx.As(new(service.FormSource)),
		),
		fx.Annotate(
			func(c *crm.Client) *crm.Client { return c },
			fx.As(new(service.LeadCreator)),
		),
		service.New,
	),
)

func newBuilder(cfg config.Config, resolver *geolocation.Resolver, log *zap.Logger) *service.Builder {
	return service.NewBuilder(cfg, resolver, log)
}
