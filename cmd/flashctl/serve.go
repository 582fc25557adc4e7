package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/flashops/api/router"
	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/internal/service"
	"github.com/sshcollectorpro/flashops/pkg/logger"
)

func newServeCommand(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			server := &http.Server{
				Addr:           cfg.GetServerAddr(),
				Handler:        router.SetupRouter(cfg, a.ops),
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				MaxHeaderBytes: 1 << 20, // 1MB
			}

			if watch && a.configPath != "" {
				go watchConfig(ctx, a.configPath, a.ops)
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Server starting on %s (mode %s, max_concurrent %d)", server.Addr, cfg.Server.Mode, cfg.Server.MaxConcurrent)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")
	return cmd
}

// watchConfig 监听配置文件，去抖后发布新配置并刷新日志配置；
// 监听地址与并发上限在启动时确定，修改需重启
func watchConfig(ctx context.Context, path string, ops *service.Operations) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("Config watch init failed: %v", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.Warnf("Config watch add failed: %v", err)
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.Warnf("Config reload failed: %v", err)
			return
		}
		ops.Reload(newCfg)
		if err := logger.Init(logConfig(newCfg)); err != nil {
			logger.Warnf("Logger reload failed: %v", err)
		}
		logger.Info("Config reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("Config watch error: %v", err)
		}
	}
}
