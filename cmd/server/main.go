package main

import (
	"github.com/diagraph-app/diagraph/backend/internal/server"
	"github.com/diagraph-app/diagraph/backend/internal/util"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"
	"github.com/diagraph-app/diagraph/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
