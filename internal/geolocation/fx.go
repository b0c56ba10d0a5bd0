package geolocation

import "go.uber.org/fx"

var Module = fx.Module("geolocation",
	fx.Provide(New),
)
