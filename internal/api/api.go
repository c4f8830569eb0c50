// Package api implements the note processing HTTP API.
//
// Endpoints:
//
//	POST /v1/process  - de-identify one note and extract clinical entities
//	GET  /healthz     - liveness plus an oracle reachability check
//
// The note is sent either as the "file" field of a multipart form or as
// the raw request body. The format query parameter picks the response:
//
//	json (default)  full result: masked text, entities, counts, PHI summary
//	txt             masked text as masked_clinical_notes.txt
//	csv             entity counts as extracted_entities.csv
//	html            masked text with highlighted entities; view=original
//	                returns the escaped original instead
//
// Every response carries an X-Request-ID header. A valid UUID supplied by
// the client is echoed back; otherwise one is generated.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinical-deid/internal/logger"
	"clinical-deid/internal/metrics"
	"clinical-deid/internal/pipeline"
	"clinical-deid/internal/report"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Download names for the txt and csv formats.
const (
	MaskedFileName = "masked_clinical_notes.txt"
	CountsFileName = "extracted_entities.csv"
)

// Processor is the part of the pipeline the API needs.
type Processor interface {
	Process(ctx context.Context, raw []byte) (*pipeline.Result, error)
	Ping(ctx context.Context) error
	OracleName() string
}

// Server serves the processing API.
type Server struct {
	proc      Processor
	maxUpload int64
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New creates a Server. maxUpload bounds the request body in bytes.
// A nil m disables rejection counting; a nil log discards output.
func New(proc Processor, maxUpload int64, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{proc: proc, maxUpload: maxUpload, metrics: m, log: log}
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/process", s.handleProcess)
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.requestID(mux)
}

// requestID assigns the correlation ID and logs each request's outcome.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(pipeline.WithRequestID(r.Context(), id)))

		s.log.With("request", "handled",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := map[string]string{"status": "ok", "oracle": s.proc.OracleName()}
	status := http.StatusOK
	if err := s.proc.Ping(ctx); err != nil {
		resp["status"] = "unavailable"
		resp["error"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, s.log, status, resp)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, r, http.StatusMethodNotAllowed, "POST only")
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "":
		format = "json"
	case "json", "txt", "csv", "html":
	default:
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown format %q: want json, txt, csv or html", format))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	raw, err := s.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			if s.metrics != nil {
				s.metrics.NotesRejected.Add(1)
			}
			s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.proc.Process(r.Context(), raw)
	switch {
	case errors.Is(err, pipeline.ErrInvalidEncoding), errors.Is(err, pipeline.ErrEmptyInput):
		s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.log.Errorf("process", "request %s: %v", pipeline.RequestID(r.Context()), err)
		s.writeError(w, r, http.StatusBadGateway, "entity recognition failed")
		return
	}

	switch format {
	case "txt":
		attachment(w, "text/plain; charset=utf-8", MaskedFileName)
		io.WriteString(w, res.Masked) //nolint:errcheck // client went away
	case "csv":
		attachment(w, "text/csv; charset=utf-8", CountsFileName)
		if err := report.WriteCountsCSV(w, res.Counts); err != nil {
			s.log.Errorf("write_csv", "request %s: %v", res.ID, err)
		}
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		body := report.HighlightHTML(res.Masked, res.Entities)
		if r.URL.Query().Get("view") == "original" {
			body = report.PlainHTML(res.Original)
		}
		io.WriteString(w, body) //nolint:errcheck // client went away
	default:
		writeJSON(w, s.log, http.StatusOK, res)
	}
}

// readUpload returns the note bytes from a multipart "file" field or the
// raw body.
func (s *Server) readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("multipart upload needs a \"file\" field: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return io.ReadAll(f)
}

func attachment(w http.ResponseWriter, contentType, name string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, s.log, status, map[string]string{
		"error":     msg,
		"requestId": pipeline.RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write_json", "encode error: %v", err)
	}
}
