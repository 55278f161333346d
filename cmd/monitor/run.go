package monitor

import (
	"context"

	"mirror-agent/cmd/utils"
	"mirror-agent/internal/config"
	"mirror-agent/internal/services/monitor"
	mirrorlog "mirror-agent/pkg/log"
)

func run(ctx context.Context) error {
	cfg := config.Get()

	logger := utils.NewLogger(cfg.Log.Level)
	logHook := mirrorlog.SetupHook(logger)
	log := logger.WithField("version", config.VersionInfo.Version)

	return monitor.Run(ctx, log, cfg.MetadataFile, logHook.SetClusterID)
}
