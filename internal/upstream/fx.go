package upstream

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the upstream HTTP client and the source resolver that
// drills invoices down into EMR and pharmacy records.
var Module = fx.Module("upstream",
	fx.Provide(
		New,
		func(c *Client, log *zap.Logger) *Resolver { return NewResolver(c, c, log) },
	),
)
