package ingestion

import (
	"github.com/smallbiznis/sheetseries/internal/ingestion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingestion.service",
	fx.Provide(service.New),
)
