package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/config"
	internalserver "github.com/BaSui01/toolbridge/internal/server"
	"github.com/BaSui01/toolbridge/internal/telemetry"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	flags := registerCommonFlags(fs)
	watch := fs.Bool("watch", false, "Reload tools when the profile or OpenAPI document changes")
	fs.Parse(args)

	cfg, err := flags.load()
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	if *watch {
		cfg.Profile.Watch = true
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting toolbridge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("profile", cfg.Profile.Path),
		zap.String("openapi", cfg.OpenAPI.Path),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("toolbridge stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("toolbridge stopped")
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a := newApp(cfg, logger)
	defer a.close()

	rt, err := a.build()
	if err != nil {
		return err
	}

	bridge := newMCPBridge(cfg.Server.Name, cfg.Server.Version, logger)
	bridge.install(rt)

	if cfg.Metrics.ListenAddr != "" {
		endpoint, err := startOpsEndpoint(cfg.Metrics.ListenAddr, a, bridge, logger)
		if err != nil {
			return err
		}
		defer endpoint.Shutdown(context.Background())
	}

	if cfg.Profile.Watch {
		watcher, err := startReloader(ctx, cfg, a, bridge, logger)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	stdio := server.NewStdioServer(bridge.srv)
	stdio.SetErrorLogger(zap.NewStdLog(logger))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// =============================================================================
// 📊 运维端点
// =============================================================================

// startOpsEndpoint 暴露 /healthz，启用指标时同时暴露 /metrics
func startOpsEndpoint(addr string, a *app, bridge *mcpBridge, logger *zap.Logger) (*internalserver.Endpoint, error) {
	endpointConfig := internalserver.DefaultConfig()
	endpointConfig.Addr = addr

	e := internalserver.NewEndpoint(endpointConfig, bridge.status, logger)
	if a.collector != nil {
		e.Handle("/metrics", a.collector.Handler())
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

// =============================================================================
// 🔄 热重载
// =============================================================================

// startReloader 监听档案与 OpenAPI 文档，变更后重建运行时。
// 新档案无效时保留旧运行时继续服务
func startReloader(ctx context.Context, cfg *config.Config, a *app, bridge *mcpBridge, logger *zap.Logger) (*config.FileWatcher, error) {
	watcher, err := config.NewFileWatcher(
		[]string{cfg.Profile.Path, cfg.OpenAPI.Path},
		config.WithPollInterval(cfg.Profile.WatchInterval),
		config.WithWatcherLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	watcher.OnChange(func(event config.FileEvent) {
		logger.Info("reloading tools",
			zap.String("path", event.Path),
			zap.String("op", event.Op.String()),
		)
		rt, err := a.build()
		if err != nil {
			logger.Error("reload failed, keeping previous tools", zap.Error(err))
			return
		}
		bridge.install(rt)
	})

	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return watcher, nil
}
