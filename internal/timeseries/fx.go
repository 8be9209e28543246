package timeseries

import (
	"github.com/smallbiznis/sheetseries/internal/timeseries/repository"
	"github.com/smallbiznis/sheetseries/internal/timeseries/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timeseries.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
