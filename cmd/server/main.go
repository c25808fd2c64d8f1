package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modalhub/modalhub/internal/bridge"
	"github.com/modalhub/modalhub/internal/config"
	"github.com/modalhub/modalhub/internal/httpapi"
	"github.com/modalhub/modalhub/internal/metrics"
	"github.com/modalhub/modalhub/internal/pipeline"
	"github.com/modalhub/modalhub/internal/session"
	"github.com/modalhub/modalhub/internal/stream"
	"github.com/modalhub/modalhub/internal/worker"
	"github.com/modalhub/modalhub/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("modalhub-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(config.ParseLevel(cfg.Log.Level))

	slog.Info("config loaded",
		"ws_addr", fmt.Sprintf("%s:%d", cfg.Server.WSHost, cfg.Server.WSPort),
		"http_addr", fmt.Sprintf("%s:%d", cfg.Server.HTTPHost, cfg.Server.HTTPPort),
		"worker", cfg.Worker.Type,
		"modality", cfg.Worker.Modality,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	// Session registry with background eviction of closed sessions.
	sessions := session.New(cfg.Server.SessionTTL)
	go sessions.Run(ctx)

	hub := ws.NewServer(cfg.Server.WSHost, cfg.Server.WSPort, m)

	// Worker and source factories are resolved exactly once, here.
	newWorker := workerFactory(cfg, m)
	newSource := sourceFactory(cfg, m)

	proc := pipeline.New(newWorker, newSource, cfg.Worker.Type, cfg.Worker.Modality, sessions)
	proc.SetServer(hub)

	if err := hub.Start(); err != nil {
		slog.Error("failed to start hub", "err", err)
		os.Exit(1)
	}

	// Optional Redis bridge — broadcasts flow through the channel so every
	// instance delivers them.
	var br *bridge.Bridge
	if cfg.Bridge.Enabled {
		br, err = bridge.New(ctx, cfg.Bridge.Addr, cfg.Bridge.Channel, hub)
		if err != nil {
			slog.Error("failed to start bridge", "err", err)
			os.Exit(1)
		}
		go br.Run(ctx)
	}

	httpSrv := httpapi.NewServer(cfg.Server.HTTPHost, cfg.Server.HTTPPort, sessions, m)
	httpSrv.RegisterCallback(func(body map[string]any, path string) (any, error) {
		if path != "/broadcast" {
			return nil, fmt.Errorf("unknown path %q", path)
		}
		msg, ok := body["message"].(string)
		if !ok || msg == "" {
			return nil, fmt.Errorf("missing message field")
		}
		if br != nil {
			if err := br.Publish(ctx, msg); err != nil {
				return nil, err
			}
		} else {
			hub.Broadcast(ws.Text(msg))
		}
		return "queued", nil
	})
	if err := httpSrv.Start(); err != nil {
		slog.Error("failed to start http server", "err", err)
		os.Exit(1)
	}

	// Hot-reload the log level on config file changes.
	go func() {
		err := config.Watch(ctx, *configPath, func(newCfg *config.Config) {
			level.Set(config.ParseLevel(newCfg.Log.Level))
		})
		if err != nil {
			slog.Error("config watcher failed", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("modalhub-server shutting down")
	proc.Stop()
	hub.Stop()
	httpSrv.Stop()
	if br != nil {
		_ = br.Close()
	}
}

// workerFactory maps worker.type onto a pipeline.WorkerFactory.
func workerFactory(cfg *config.Config, m *metrics.Metrics) pipeline.WorkerFactory {
	switch cfg.Worker.Type {
	case "remote":
		return func(respond func(ws.Message)) (pipeline.Worker, error) {
			return worker.NewRemote(cfg.Worker, respond, m), nil
		}
	default:
		return func(respond func(ws.Message)) (pipeline.Worker, error) {
			return worker.NewEcho(respond), nil
		}
	}
}

// sourceFactory maps worker.modality onto a pipeline.SourceFactory.
func sourceFactory(cfg *config.Config, m *metrics.Metrics) pipeline.SourceFactory {
	if cfg.Worker.Modality == "video" {
		return func() pipeline.Source {
			return stream.NewVideoInput(cfg.Video.MaxFPS, m)
		}
	}
	return func() pipeline.Source {
		return stream.NewAudioInput(cfg.Audio.DefaultRate, m)
	}
}
