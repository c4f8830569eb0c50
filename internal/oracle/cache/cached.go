package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"clinical-deid/internal/logger"
	"clinical-deid/internal/metrics"
	"clinical-deid/internal/oracle"
)

// Oracle wraps another oracle.Oracle, serving Recognize from a Store when
// the same text was recognized before by the same backend. Every call that
// reaches the inner backend is counted and timed in metrics. Tokenize and
// Ping pass through.
type Oracle struct {
	inner   oracle.Oracle
	store   Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

// cachedSpan is the on-disk form of one span. Text is re-sliced from the
// input on a hit.
type cachedSpan struct {
	Label oracle.Label `json:"l"`
	Start int          `json:"s"`
	End   int          `json:"e"`
}

// Wrap returns a caching Oracle around inner. m may be nil.
func Wrap(inner oracle.Oracle, store Store, m *metrics.Metrics, log *logger.Logger) *Oracle {
	if m == nil {
		m = metrics.New()
	}
	return &Oracle{inner: inner, store: store, metrics: m, log: log}
}

// Name implements oracle.Oracle. The inner name is reported unchanged so
// logs identify the real backend.
func (o *Oracle) Name() string { return o.inner.Name() }

// Ping implements oracle.Oracle.
func (o *Oracle) Ping(ctx context.Context) error { return o.inner.Ping(ctx) }

// Tokenize implements oracle.Tokenizer.
func (o *Oracle) Tokenize(ctx context.Context, text string) ([]oracle.Token, error) {
	return o.inner.Tokenize(ctx, text)
}

// Recognize implements oracle.Recognizer.
func (o *Oracle) Recognize(ctx context.Context, text string) ([]oracle.Span, error) {
	key := Key(o.inner.Name(), text)
	if raw, ok := o.store.Get(key); ok {
		if spans, ok := decode(text, raw); ok {
			o.metrics.CacheHits.Add(1)
			return spans, nil
		}
		o.log.Warn("cache_decode", "discarding unreadable cache entry")
		o.store.Delete(key)
	}
	o.metrics.CacheMisses.Add(1)

	start := time.Now()
	o.metrics.OracleCalls.Add(1)
	spans, err := o.inner.Recognize(ctx, text)
	o.metrics.RecordOracleLatency(time.Since(start))
	if err != nil {
		o.metrics.OracleErrors.Add(1)
		return nil, err
	}

	if raw, err := encode(spans); err == nil {
		o.store.Set(key, raw)
	} else {
		o.log.Warnf("cache_encode", "not caching result: %v", err)
	}
	return spans, nil
}

// Close closes the underlying store.
func (o *Oracle) Close() error { return o.store.Close() }

// Key derives the cache key for text as recognized by the named backend.
func Key(backend, text string) string {
	h := sha256.New()
	h.Write([]byte(backend))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func encode(spans []oracle.Span) (string, error) {
	out := make([]cachedSpan, len(spans))
	for i, s := range spans {
		out[i] = cachedSpan{Label: s.Label, Start: s.Start, End: s.End}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(text, raw string) ([]oracle.Span, bool) {
	var in []cachedSpan
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, false
	}
	spans := make([]oracle.Span, 0, len(in))
	for _, c := range in {
		if c.Start < 0 || c.End > len(text) || c.Start >= c.End {
			return nil, false
		}
		spans = append(spans, oracle.Span{Text: text[c.Start:c.End], Label: c.Label, Start: c.Start, End: c.End})
	}
	return spans, true
}
