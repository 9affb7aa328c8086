// Command proxy runs the wayfinder downstream HTTP proxy: it loads a
// static cluster/route document, watches it for changes, and serves
// connections through the state/rewrite/router filter chain.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wayfinder/wayfinder/internal/admin"
	"github.com/wayfinder/wayfinder/internal/clustermanager"
	"github.com/wayfinder/wayfinder/internal/config"
	"github.com/wayfinder/wayfinder/internal/configwatch"
	"github.com/wayfinder/wayfinder/internal/proxy"
	"github.com/wayfinder/wayfinder/internal/telemetry"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}

	stats := telemetry.NewPrometheusSink(prometheus.DefaultRegisterer)
	cm := clustermanager.New(log)
	proxyServer := proxy.New(cfg, cm, stats, log)

	watcher, err := configwatch.NewWatcher(cfg.StaticConfigPath, log)
	if err != nil {
		log.Error("starting config watcher", "error", err, "path", cfg.StaticConfigPath)
		os.Exit(1)
	}
	watcher.OnChange(func(doc *configwatch.Document) {
		built, err := configwatch.BuildClusters(doc)
		if err != nil {
			log.Warn("skipping config reload", "error", err)
			return
		}
		for _, bc := range built {
			cm.AddOrUpdateCluster(bc.Info, bc.ByPriority)
		}
		proxyServer.SetRouteConfig(configwatch.BuildRouteConfig(doc))
	})

	adminServer := admin.NewServer(cm, log)
	adminServer.SetPoolDrainer(proxyServer.Pools())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Error("config watcher stopped", "error", err)
		}
	}()
	go func() {
		if err := adminServer.Serve(ctx, cfg.AdminAddr); err != nil {
			log.Error("admin server stopped", "error", err)
		}
	}()

	if err := proxyServer.ListenAndServe(ctx); err != nil {
		log.Error("proxy server stopped", "error", err)
		os.Exit(1)
	}
}
