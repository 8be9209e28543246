package fetcher

import (
	"github.com/smallbiznis/sheetseries/internal/clock"
	"github.com/smallbiznis/sheetseries/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

func New(p Params) Fetcher {
	return NewDirInbox(p.Cfg.Inbox.Dir, p.Clock, p.Log)
}

var Module = fx.Module("fetcher",
	fx.Provide(New),
)
