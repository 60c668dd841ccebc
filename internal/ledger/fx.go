package ledger

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/config"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  Config
	Clock   clock.Clock
	Node    *snowflake.Node
	Archive *Archive
	Metrics *obsmetrics.Metrics
	Log     *zap.Logger
}

func provideConfig(cfg config.Config) Config {
	return Config{
		AutoVoidDays:       cfg.AutoVoidDays,
		AutomationInterval: cfg.AutomationInterval,
	}
}

func provideArchive(cfg config.Config, log *zap.Logger) (*Archive, error) {
	return NewArchive(cfg.ArchiveDSN, log)
}

func provideService(p Params) *Service {
	return NewService(p.Config, p.Clock, p.Node, p.Archive, p.Metrics, p.Log)
}

func runAutomations(lc fx.Lifecycle, s *Service) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Module wires the billing ledger and its automation loop.
var Module = fx.Module("ledger",
	fx.Provide(
		provideConfig,
		provideArchive,
		provideService,
	),
	fx.Invoke(runAutomations),
)
