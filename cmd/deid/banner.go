package main

import (
	"fmt"

	"clinical-deid/internal/config"
)

func printBanner(cfg *config.Config) {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	cache := cfg.CacheFile
	if cache == "" {
		cache = "(memory)"
	}
	oracle := cfg.Oracle
	switch cfg.Oracle {
	case config.OracleSidecar:
		oracle += " @ " + cfg.SidecarURL
	case config.OracleOllama:
		oracle += " @ " + cfg.OllamaEndpoint + " (" + cfg.OllamaModel + ")"
	case config.OracleComprehend:
		oracle += " @ " + cfg.AWSRegion
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║      Clinical Notes De-identification  (Go)          ║
╚══════════════════════════════════════════════════════╝
  API port        : %d
  Management port : %d
  NER oracle      : %s
  Mask strategy   : %s
  Span cache      : %s
  Protect terms   : %v

  Process a note:
    curl --data-binary @notes.txt '%s://localhost:%d/v1/process?format=txt'

  Check status:
    curl http://localhost:%d/status
`, cfg.Port, cfg.ManagementPort,
		oracle, cfg.MaskStrategy, cache, cfg.ProtectTerms,
		scheme, cfg.Port,
		cfg.ManagementPort)
}
