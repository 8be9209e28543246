package scheduler

import (
	"context"

	"github.com/smallbiznis/sheetseries/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.Scheduler.Enabled && !cfg.Scheduler.RetentionEnabled {
		return
	}

	var (
		cancel   context.CancelFunc
		stopCron func()
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			if cfg.Scheduler.Enabled {
				go sched.RunForever(ctx)
			}
			if cfg.Scheduler.RetentionEnabled {
				c, err := sched.StartRetention(ctx)
				if err != nil {
					cancel()
					return err
				}
				stopCron = func() { <-c.Stop().Done() }
				log.Info("retention scheduled", zap.String("cron", sched.cfg.RetentionCron))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			if stopCron != nil {
				stopCron()
			}
			return nil
		},
	})
}
