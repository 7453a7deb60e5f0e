package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/config"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/server"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/telemetry"
)

var version = "dev"

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "nerapp.yaml", "Path to nerapp config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		redact.Fatalf("failed to load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.Service,
		Version:  version,
	})
	if err != nil {
		redact.Fatalf("telemetry: %v", err)
	}

	pipeline, err := nlp.Load(cfg.Model, cfg.Server.MaxTextBytes)
	if err != nil {
		redact.Fatalf("failed to load model %s: %v", cfg.Model.Name, err)
	}
	defer pipeline.Close()

	srv, err := server.New(cfg, pipeline, tel)
	if err != nil {
		redact.Fatalf("failed to build server: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			redact.Logf("server error: %v", err)
		}
	case <-ctx.Done():
		redact.Logf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			redact.Logf("shutdown: %v", err)
		}
		cancel()
	}

	telCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tel.Shutdown(telCtx)
}
