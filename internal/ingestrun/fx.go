package ingestrun

import (
	"github.com/smallbiznis/sheetseries/internal/ingestrun/repository"
	"github.com/smallbiznis/sheetseries/internal/ingestrun/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingestrun.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
