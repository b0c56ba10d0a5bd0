package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/leadbridge/internal/attribution"
	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/campaign"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/connection"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	"github.com/smallbiznis/leadbridge/internal/lead"
	"github.com/smallbiznis/leadbridge/internal/migration"
	"github.com/smallbiznis/leadbridge/internal/observability"
	"github.com/smallbiznis/leadbridge/internal/ratelimit"
	"github.com/smallbiznis/leadbridge/internal/rotation"
	"github.com/smallbiznis/leadbridge/internal/scheduler"
	"github.com/smallbiznis/leadbridge/internal/server"
	"github.com/smallbiznis/leadbridge/internal/settings"
	"github.com/smallbiznis/leadbridge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Integrations
		crm.Module,
		geolocation.Module,
		attribution.Module,

		// Functional Domains
		settings.Module,
		rotation.Module,
		lead.Module,
		connection.Module,
		campaign.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
