package comprehend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/comprehendmedical"

	"clinical-deid/internal/oracle"
)

type stubAPI struct {
	out   *comprehendmedical.DetectPHIOutput
	err   error
	calls int
}

func (s *stubAPI) DetectPHIWithContext(_ aws.Context, in *comprehendmedical.DetectPHIInput, _ ...request.Option) (*comprehendmedical.DetectPHIOutput, error) {
	s.calls++
	if in.Text == nil {
		return nil, errors.New("missing text")
	}
	return s.out, s.err
}

func entity(text, typ string, begin, end int64) *comprehendmedical.Entity {
	return &comprehendmedical.Entity{
		Text:        aws.String(text),
		Type:        aws.String(typ),
		Category:    aws.String("PROTECTED_HEALTH_INFORMATION"),
		BeginOffset: aws.Int64(begin),
		EndOffset:   aws.Int64(end),
	}
}

func TestRecognizeMapsTypesAndOffsets(t *testing.T) {
	// "José Pérez, 42, seen 3 May at 12 Hill Rd": é is two bytes.
	text := "José Pérez, 42, seen 3 May at 12 Hill Rd"
	api := &stubAPI{out: &comprehendmedical.DetectPHIOutput{Entities: []*comprehendmedical.Entity{
		entity("José Pérez", "NAME", 0, 10),
		entity("42", "AGE", 12, 14),
		entity("3 May", "DATE", 21, 26),
		entity("12 Hill Rd", "ADDRESS", 30, 40),
		nil,
	}}}
	c := &Client{api: api}

	spans, err := c.Recognize(context.Background(), text)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	want := []struct {
		label oracle.Label
		text  string
	}{
		{oracle.LabelPerson, "José Pérez"},
		{oracle.LabelOther, "42"},
		{oracle.LabelDate, "3 May"},
		{oracle.LabelFac, "12 Hill Rd"},
	}
	if len(spans) != len(want) {
		t.Fatalf("got %d spans, want %d: %v", len(spans), len(want), spans)
	}
	for i, w := range want {
		if spans[i].Label != w.label || text[spans[i].Start:spans[i].End] != w.text {
			t.Errorf("span %d = %v, want %v %q", i, spans[i], w.label, w.text)
		}
	}
}

func TestRecognizeRejectsOversizedText(t *testing.T) {
	api := &stubAPI{}
	c := &Client{api: api}
	if _, err := c.Recognize(context.Background(), strings.Repeat("a", MaxTextBytes+1)); err == nil {
		t.Error("expected size error")
	}
	if api.calls != 0 {
		t.Error("oversized text must not reach the service")
	}
}

func TestRecognizePropagatesError(t *testing.T) {
	c := &Client{api: &stubAPI{err: errors.New("ThrottlingException")}}
	if _, err := c.Recognize(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "Throttling") {
		t.Errorf("expected wrapped service error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	ok := &Client{credentials: func(context.Context) error { return nil }}
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	bad := &Client{credentials: func(context.Context) error { return errors.New("NoCredentialProviders") }}
	if err := bad.Ping(context.Background()); !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
