package main

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/spf13/cobra"

	"clinical-deid/internal/api"
	"clinical-deid/internal/config"
	"clinical-deid/internal/logger"
	"clinical-deid/internal/management"
	"clinical-deid/internal/metrics"
	"clinical-deid/internal/pipeline"
	"clinical-deid/internal/tlscert"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the processing API and the management API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New("deid", cfg.LogLevel)
	defer log.Sync() //nolint:errcheck // stderr sync fails on some terminals

	printBanner(cfg)

	// The registry is shared by the masker and the management API.
	// Runtime changes are persisted to cfg.KeywordsFile and restored on restart.
	m := metrics.New()
	registry := management.NewKeywordRegistry(cfg.ClinicalKeywords, cfg.KeywordsFile, logger.New("keywords", cfg.LogLevel))

	p, err := pipeline.Build(ctx, cfg, logger.New("pipeline", cfg.LogLevel), m, registry)
	if err != nil {
		log.Fatalf("build", "build pipeline: %v", err)
	}
	defer p.Close() //nolint:errcheck // best-effort on exit

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OracleTimeout())
	err = p.Ping(pingCtx)
	cancel()
	if err != nil {
		p.Close() //nolint:errcheck // exiting
		log.Fatalf("oracle_ping", "oracle %s: %v", p.OracleName(), err)
	}

	mgmt := management.New(cfg, registry, p, m, logger.New("management", cfg.LogLevel))
	go func() {
		if err := mgmt.ListenAndServe(ctx); err != nil {
			log.Fatalf("management", "%v", err)
		}
	}()

	var tlsCfg *tls.Config
	if cfg.UseTLS {
		cert, err := tlscert.LoadOrGenerate(cfg.TLSCertFile, cfg.TLSKeyFile, tlscert.DefaultHosts, logger.New("tls", cfg.LogLevel))
		if err != nil {
			log.Fatalf("tls", "%v", err)
		}
		tlsCfg = tlscert.Config(cert)
	}

	handler := api.New(p, cfg.MaxUploadBytes, m, logger.New("api", cfg.LogLevel)).Handler()
	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv, err := api.NewHTTPServer(addr, handler, tlsCfg)
	if err != nil {
		return err
	}
	log.Infof("listen", "listening on %s (tls=%v)", addr, cfg.UseTLS)
	if err := api.ListenAndServe(ctx, srv); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	log.Info("shutdown", "stopped")
	return nil
}
