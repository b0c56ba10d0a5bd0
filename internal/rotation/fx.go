package rotation

import (
	"github.com/smallbiznis/leadbridge/internal/rotation/repository"
	"github.com/smallbiznis/leadbridge/internal/rotation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rotation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
