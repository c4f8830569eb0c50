// Package pipeline wires the masker and the entity extractor into the
// per-note processing path shared by the HTTP API and the CLI.
//
// A Pipeline is built once at startup and is safe for concurrent use.
// Process decodes one upload, masks it, extracts entities from the masked
// text and assembles the summaries the outer surfaces render.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinical-deid/internal/deid"
	"clinical-deid/internal/extract"
	"clinical-deid/internal/logger"
	"clinical-deid/internal/metrics"
	"clinical-deid/internal/oracle"
	"clinical-deid/internal/report"
)

// Result is everything produced for one note.
type Result struct {
	ID           string               `json:"id"`
	Original     string               `json:"original"`
	Masked       string               `json:"masked"`
	Entities     []extract.Entity     `json:"entities"`
	PHI          report.PHISummary    `json:"phi"`
	Counts       []report.EntityCount `json:"counts"`
	Distribution []report.TypeCount   `json:"distribution"`
	Decisions    []deid.Decision      `json:"decisions"`
	RuleStats    deid.RuleStats       `json:"ruleStats"`
}

// Pipeline processes notes.
type Pipeline struct {
	oracle    oracle.Oracle
	masker    *deid.Masker
	extractor *extract.Extractor
	metrics   *metrics.Metrics
	log       *logger.Logger
	closer    io.Closer
}

// New assembles a Pipeline from already built parts. o is used for health
// checks only; masker and extractor hold their own references to it.
// A nil m gets a private Metrics; a nil log discards output.
func New(o oracle.Oracle, masker *deid.Masker, extractor *extract.Extractor, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{oracle: o, masker: masker, extractor: extractor, metrics: m, log: log}
}

// OracleName returns the name of the NER backend.
func (p *Pipeline) OracleName() string { return p.oracle.Name() }

// Ping checks that the NER backend is reachable.
func (p *Pipeline) Ping(ctx context.Context) error { return p.oracle.Ping(ctx) }

// Patterns returns the number of dictionary phrases loaded.
func (p *Pipeline) Patterns() int { return p.extractor.Patterns() }

// Strategy returns the masker's replacement strategy.
func (p *Pipeline) Strategy() deid.Strategy { return p.masker.Strategy() }

// Close releases the recognition cache, if any.
func (p *Pipeline) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Process runs one note through both passes. raw must be UTF-8 text;
// ErrInvalidEncoding and ErrEmptyInput are returned unwrapped.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (*Result, error) {
	text, err := Decode(raw)
	if err != nil {
		p.metrics.NotesRejected.Add(1)
		p.log.Warnf("process", "rejected upload of %d bytes: %v", len(raw), err)
		return nil, err
	}

	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	start := time.Now()
	masked, err := p.masker.Mask(ctx, text)
	if err != nil {
		p.log.Errorf("process", "mask %s: %v", id, err)
		return nil, fmt.Errorf("mask note: %w", err)
	}
	p.metrics.RecordMaskLatency(time.Since(start))

	start = time.Now()
	entities, err := p.extractor.Extract(ctx, masked.Text)
	if err != nil {
		p.log.Errorf("process", "extract %s: %v", id, err)
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	p.metrics.RecordExtractLatency(time.Since(start))

	res := &Result{
		ID:           id,
		Original:     text,
		Masked:       masked.Text,
		Entities:     entities,
		PHI:          report.PHICounts(masked.Text),
		Counts:       report.CountEntities(entities),
		Distribution: report.TypeDistribution(entities),
		Decisions:    masked.Decisions,
		RuleStats:    masked.RuleStats,
	}

	for ph, n := range masked.Placeholders {
		p.metrics.RecordPlaceholders(ph.Name(), n)
	}
	for _, tc := range res.Distribution {
		p.metrics.RecordEntities(tc.Type.String(), tc.Count)
	}
	p.metrics.NotesProcessed.Add(1)

	p.log.With("process", "note processed",
		zap.String("id", id),
		zap.Int("bytes", len(text)),
		zap.Int("placeholders", res.PHI.Total),
		zap.Int("entities", len(entities)),
	)
	return res, nil
}

type requestIDKey struct{}

// WithRequestID returns a context carrying id. Process uses it as the
// result ID instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
