package management

import (
	"context"
	"strings"

	"clinical-deid/internal/oracle"
)

// recognizeAll labels every occurrence of word as PERSON.
type recognizeAll string

func (w recognizeAll) Recognize(_ context.Context, text string) ([]oracle.Span, error) {
	var spans []oracle.Span
	for from := 0; ; {
		i := strings.Index(text[from:], string(w))
		if i < 0 {
			return spans, nil
		}
		start := from + i
		spans = append(spans, oracle.Span{Text: string(w), Label: oracle.LabelPerson, Start: start, End: start + len(w)})
		from = start + len(w)
	}
}
