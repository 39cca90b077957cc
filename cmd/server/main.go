package main

import (
	"go.uber.org/fx"

	"dreamflow/internal/server"
)

func main() {
	app := fx.New(
		server.Module,
		fx.WithLogger(server.FxLogger),
	)
	app.Run()
}
