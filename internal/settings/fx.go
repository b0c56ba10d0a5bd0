package settings

import (
	"github.com/smallbiznis/leadbridge/internal/settings/domain"
	"github.com/smallbiznis/leadbridge/internal/settings/repository"
	"github.com/smallbiznis/leadbridge/internal/settings/service"
	"go.uber.org/fx"
)

// ObserverGroup collects APIKeyObserver implementations.
const ObserverGroup = `group:"apikey_observers"`

var Module = fx.Module("settings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(fx.Annotate(
		subscribeObservers,
		fx.ParamTags(``, ObserverGroup),
	)),
)

func subscribeObservers(svc domain.Service, observers []domain.APIKeyObserver) {
	for _, o := range observers {
		svc.Subscribe(o)
	}
}

// AsObserver annotates a constructor so its result joins the observer group.
func AsObserver(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(domain.APIKeyObserver)),
		fx.ResultTags(ObserverGroup),
	)
}
