// Package clock provides an injectable time source so time-dependent
// behavior (auto-void cutoffs, poller ticks) is deterministic in tests.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is the minimal time source consumed by services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

// Module wires the system clock for the application.
var Module = fx.Module("clock",
	fx.Provide(System),
)
