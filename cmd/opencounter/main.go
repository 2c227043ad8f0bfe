package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/opencounter/opencounter/internal/config"
	"github.com/opencounter/opencounter/internal/logger"
	"github.com/opencounter/opencounter/internal/observability"
	"github.com/opencounter/opencounter/internal/server"
	"github.com/opencounter/opencounter/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
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
