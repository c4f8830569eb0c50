package pipeline

import (
	"context"
	"fmt"

	"clinical-deid/internal/config"
	"clinical-deid/internal/deid"
	"clinical-deid/internal/extract"
	"clinical-deid/internal/logger"
	"clinical-deid/internal/metrics"
	"clinical-deid/internal/oracle"
	"clinical-deid/internal/oracle/cache"
	"clinical-deid/internal/oracle/comprehend"
	"clinical-deid/internal/oracle/ollama"
	"clinical-deid/internal/oracle/rules"
	"clinical-deid/internal/oracle/sidecar"
)

// NewOracle constructs the NER backend named by cfg.Oracle.
func NewOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.Oracle {
	case config.OracleRules, "":
		return rules.New(), nil
	case config.OracleSidecar:
		return sidecar.New(cfg.SidecarURL, cfg.OracleTimeout()), nil
	case config.OracleOllama:
		return ollama.New(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.OracleTimeout()), nil
	case config.OracleComprehend:
		c, err := comprehend.New(cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("comprehend: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown oracle %q", cfg.Oracle)
	}
}

// Build constructs the configured oracle once, wraps it in the recognition
// cache and builds the masker and extractor around it.
//
// keywords is the runtime clinical keyword whitelist; nil means a static
// set built from cfg.ClinicalKeywords. With cfg.ProtectTerms every
// dictionary term is whitelisted as well. The caller must Close the
// returned Pipeline.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics, keywords deid.KeywordSet) (*Pipeline, error) {
	if m == nil {
		m = metrics.New()
	}
	strategy, err := deid.ParseStrategy(cfg.MaskStrategy)
	if err != nil {
		return nil, err
	}

	terms := extract.DefaultTerms()
	if cfg.TermsFile != "" {
		if terms, err = extract.LoadTerms(cfg.TermsFile); err != nil {
			return nil, err
		}
		log.Infof("build", "loaded %d terms from %s", terms.Len(), cfg.TermsFile)
	}

	inner, err := NewOracle(cfg)
	if err != nil {
		return nil, err
	}
	store := cache.Open(cfg.CacheFile, cfg.CacheCapacity, log)
	o := cache.Wrap(inner, store, m, log)

	extractor, err := extract.NewExtractor(ctx, o, terms)
	if err != nil {
		o.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("build phrase matcher: %w", err)
	}

	if keywords == nil {
		keywords = deid.NewStaticKeywords(cfg.ClinicalKeywords...)
	}
	if cfg.ProtectTerms {
		keywords = deid.Union(keywords, deid.NewStaticKeywords(terms.All()...))
	}

	masker := deid.NewMasker(o,
		deid.WithStrategy(strategy),
		deid.WithRules(deid.NewRules(cfg.Cities)),
		deid.WithKeywords(keywords),
	)

	p := New(o, masker, extractor, m, log)
	p.closer = o
	log.Infof("build", "oracle=%s strategy=%s patterns=%d", o.Name(), strategy, extractor.Patterns())
	return p, nil
}
