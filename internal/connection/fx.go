package connection

import (
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/settings"
	"go.uber.org/fx"
)

var Module = fx.Module("connection",
	fx.Provide(
		fx.Annotate(
			func(c *crm.Client) *crm.Client { return c },
			fx.As(new(Checker)),
		),
		New,
		settings.AsObserver(func(t *Tester) *Tester { return t }),
	),
)
