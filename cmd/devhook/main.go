package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/devhook"
	"github.com/comigor/chatrelay/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(os.Stderr, cfg.Log.Level)
	if logger.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := devhook.NewRouter(*cfg)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting dev webhook", "address", serverAddr, "default_shape", cfg.DevHook.Shape)
	if err := r.Run(serverAddr); err != nil {
		logger.L.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
