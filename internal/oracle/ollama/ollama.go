// Package ollama provides an oracle.Oracle backed by a local Ollama model.
//
// The model is asked for a JSON array of {"text","label"} detections. LLMs
// do not report reliable offsets, so every non-overlapping occurrence of each
// detected text is located in the input and reported as a span. Only whole
// words count: an occurrence with a letter or digit on either side is
// ignored. Detections
// are applied in the order the model returns them; an occurrence already
// claimed by an earlier detection is skipped.
//
// Tokenization uses the rule tokenizer.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"clinical-deid/internal/oracle"
	"clinical-deid/internal/oracle/rules"
)

const maxOllamaResponse = 10 << 20 // 10 MB

// Client queries Ollama's /api/generate endpoint.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
}

// New creates a Client for the Ollama server at endpoint using model.
func New(endpoint, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

type detection struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Name implements oracle.Oracle.
func (c *Client) Name() string { return "ollama:" + c.model }

// Ping implements oracle.Oracle by listing the server's models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create ollama request: %w", err)
	}
	resp, err := c.http.Do(req) // #nosec G107 -- URL from trusted config, not user input
	if err != nil {
		return fmt.Errorf("%w: ollama: %v", oracle.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama status %d", oracle.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Tokenize implements oracle.Tokenizer.
func (c *Client) Tokenize(ctx context.Context, text string) ([]oracle.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rules.Tokenize(text), nil
}

// Recognize implements oracle.Recognizer.
func (c *Client) Recognize(ctx context.Context, text string) ([]oracle.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	detections, err := c.query(ctx, text)
	if err != nil {
		return nil, err
	}
	return locate(text, detections), nil
}

func (c *Client) query(ctx context.Context, text string) ([]detection, error) {
	prompt := fmt.Sprintf(`Find named entities in the following clinical note.
Return ONLY a JSON array. Each item must have:
- "text": the exact text as it appears in the note
- "label": one of PERSON, ORG, GPE, LOC, FAC, DATE

Text placeholders in square brackets such as [DATE] are already masked; ignore them.
Do not report diseases, symptoms, medications, tests or procedures.

Note:
%s

Return ONLY the JSON array, no explanation. Example: [{"text":"John Smith","label":"PERSON"}]`,
		text)

	reqBody, err := json.Marshal(ollamaRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req) // #nosec G107 -- URL from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxOllamaResponse {
		return nil, fmt.Errorf("ollama response exceeds %d bytes", maxOllamaResponse)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("ollama response parse error: %w", err)
	}
	return parseDetections(ollamaResp.Response)
}

// parseDetections extracts the JSON array from the model's text response.
func parseDetections(raw string) ([]detection, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in ollama response")
	}
	var detections []detection
	if err := json.Unmarshal([]byte(raw[start:end+1]), &detections); err != nil {
		return nil, fmt.Errorf("detection parse error: %w", err)
	}
	return detections, nil
}

// locate turns detections into spans by finding their occurrences in text.
func locate(text string, detections []detection) []oracle.Span {
	taken := make([]bool, len(text))
	var spans []oracle.Span
	for _, d := range detections {
		label := oracle.ParseLabel(d.Label)
		if d.Text == "" || label == oracle.LabelOther {
			continue
		}
		for from := 0; from < len(text); {
			idx := strings.Index(text[from:], d.Text)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(d.Text)
			if wholeWord(text, start, end) && free(taken, start, end) {
				for k := start; k < end; k++ {
					taken[k] = true
				}
				spans = append(spans, oracle.Span{Text: d.Text, Label: label, Start: start, End: end})
				from = end
				continue
			}
			_, size := utf8.DecodeRuneInString(text[start:])
			from = start + size
		}
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

func free(taken []bool, start, end int) bool {
	for k := start; k < end; k++ {
		if taken[k] {
			return false
		}
	}
	return true
}

// wholeWord reports whether text[start:end] is not glued to a letter or
// digit on either side.
func wholeWord(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); alnum(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); alnum(r) {
			return false
		}
	}
	return true
}

func alnum(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
