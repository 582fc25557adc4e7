package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sshcollectorpro/flashops/pkg/logger"
	"github.com/sshcollectorpro/flashops/simulate"
)

func main() {
	configPath := pflag.StringP("config", "c", "simulate/simulate.yaml", "simulated device config")
	listen := pflag.StringP("listen", "l", "127.0.0.1:22001", "listen address")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	if err := logger.Init(logger.Config{Level: *level, Output: "console"}); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}

	cfg, err := simulate.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Simulate: failed to load %s: %v", *configPath, err)
	}
	dev, err := simulate.NewDevice(*cfg)
	if err != nil {
		logger.Fatalf("Simulate: invalid device config: %v", err)
	}
	if err := dev.Start(*listen); err != nil {
		logger.Fatalf("Simulate: failed to listen on %s: %v", *listen, err)
	}
	logger.Infof("Simulate: %s listening on %s, flash %s%s", cfg.Hostname, dev.Addr(), cfg.FileSystem, cfg.FlashDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	dev.Stop()
	logger.Infof("Simulate: stopped, %d shell sessions served", dev.Sessions())
}
