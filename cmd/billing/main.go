package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/carelink/billing/internal/billing"
	"github.com/carelink/billing/internal/catalog"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/eventbus"
	"github.com/carelink/billing/internal/ledger"
	"github.com/carelink/billing/internal/logger"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"github.com/carelink/billing/internal/poller"
	"github.com/carelink/billing/internal/server"
	"github.com/carelink/billing/internal/upstream"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		obsmetrics.Module,
		eventbus.Module,
		fx.Provide(registerSnowflake),

		// Billing domains
		upstream.Module,
		catalog.Module,
		ledger.Module,
		billing.Module,
		poller.Module,

		server.Module,
	).Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
