package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/config"
	"github.com/hybrid-sentinel/sentinel/internal/forensics"
	"github.com/hybrid-sentinel/sentinel/internal/ingest"
	"github.com/hybrid-sentinel/sentinel/internal/observability"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the engine configuration file")
	inputPath := flag.String("input", "", "path to the input transaction CSV (defaults to stdin)")
	graphOutPath := flag.String("graph-out", "", "optional path to also write the graph-data visualization payload")
	metricsAddr := flag.String("metrics-addr", "", "optional address (e.g. :9090) to serve /metrics and /healthz on while the batch runs")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "sentinel-core").
		Logger()

	log.Info().Msg("========================================")
	log.Info().Msg("Financial Forensics Engine - Starting")
	log.Info().Msg("========================================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("could not load config file, running with built-in defaults")
		cfg = config.Default()
	}
	log.Info().Str("instance_id", cfg.General.InstanceID).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	in := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *inputPath).Msg("failed to open input file")
		}
		defer f.Close()
		in = f
	}

	txns, err := ingest.FromCSV(in)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to ingest transaction batch")
	}
	log.Info().Int("transactions", len(txns)).Msg("batch ingested")

	engine := forensics.NewEngine(cfg)

	if *metricsAddr == "" && cfg.Metrics.Enabled {
		*metricsAddr = fmt.Sprintf(":%d", cfg.Metrics.PrometheusPort)
	}

	if *metricsAddr != "" {
		go engine.Health.Start(ctx)
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.NewPrometheusExporter(engine.Metrics))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			health := engine.Health.Check(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if health.Status != observability.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(health)
		})
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		log.Info().Str("addr", *metricsAddr).Msg("serving /metrics and /healthz")
	}

	rep, err := engine.Run(ctx, txns)
	if err != nil {
		log.Fatal().Err(err).Msg("forensics pipeline failed")
	}

	log.Info().
		Int("accounts_flagged", rep.Summary.SuspiciousAccountsFlagged).
		Int("rings_detected", rep.Summary.FraudRingsDetected).
		Float64("processing_time_seconds", rep.Summary.ProcessingTimeSeconds).
		Msg("batch analysis complete")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Fatal().Err(err).Msg("failed to encode report")
	}

	if *graphOutPath != "" {
		f, err := os.Create(*graphOutPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *graphOutPath).Msg("failed to create graph-data output file")
		}
		defer f.Close()

		gEnc := json.NewEncoder(f)
		gEnc.SetIndent("", "  ")
		if err := gEnc.Encode(engine.GraphData()); err != nil {
			log.Fatal().Err(err).Msg("failed to encode graph data")
		}
		log.Info().Str("path", *graphOutPath).Msg("graph-data payload written")
	}
}
