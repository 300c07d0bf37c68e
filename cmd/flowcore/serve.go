package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/internal/server"
)

// =============================================================================
// 🚀 serve 命令
// =============================================================================

func runServe(args []string, stdout io.Writer) error {
	var cf commonFlags
	fs := newFlagSet("serve", &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, level, err := loadConfig(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cf.configPath != "" {
		watcher, err := config.NewFileWatcher(
			config.NewLoader().WithConfigPath(cf.configPath),
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			return err
		}
		// 只有日志级别支持热更新，其余配置需要重启
		watcher.OnReload(func(c *config.Config) {
			next := parseLevel(c.Log.Level)
			if next != level.Level() {
				level.SetLevel(next)
				logger.Info("log level changed", zap.String("level", next.String()))
			}
		})
		go watcher.Run(ctx)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	srv := server.NewManager(a.handler(), srvCfg, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("flowcore started",
		zap.String("version", Version),
		zap.String("addr", srv.ListenAddr()),
		zap.String("database", cfg.Database.Driver))

	if err := srv.Wait(ctx); err != nil {
		return err
	}
	logger.Info("flowcore stopped")
	return nil
}
