package campaign

import (
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/settings"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign",
	fx.Provide(
		fx.Annotate(
			func(c *crm.Client) *crm.Client { return c },
			fx.As(new(Lister)),
		),
		New,
		settings.AsObserver(func(c *Catalog) *Catalog { return c }),
	),
)
