package billing

import (
	"github.com/carelink/billing/internal/billing/service"
	"go.uber.org/fx"
)

// Module wires the billing core service.
var Module = fx.Module("billing.service",
	fx.Provide(service.NewService),
)
