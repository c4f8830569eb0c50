// Package comprehend provides an oracle.Oracle backed by AWS Comprehend
// Medical's DetectPHI operation.
//
// Comprehend Medical reports PHI categories rather than general NER labels.
// They map onto the labels the masker acts on as follows:
//
//	NAME    → PERSON
//	ADDRESS → FAC
//	DATE    → DATE
//
// All other categories (AGE, ID, PHONE_OR_FAX, EMAIL, URL, PROFESSION, ...)
// are reported as OTHER; the regex pass covers the contact and identifier
// categories. Offsets are characters on the wire and are converted to bytes.
package comprehend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/comprehendmedical"

	"clinical-deid/internal/oracle"
	"clinical-deid/internal/oracle/rules"
)

// MaxTextBytes is the DetectPHI request size limit.
const MaxTextBytes = 20000

// phiDetector is the subset of the Comprehend Medical client used here.
type phiDetector interface {
	DetectPHIWithContext(aws.Context, *comprehendmedical.DetectPHIInput, ...request.Option) (*comprehendmedical.DetectPHIOutput, error)
}

// Client calls Comprehend Medical.
type Client struct {
	api         phiDetector
	credentials func(ctx context.Context) error
}

// New creates a Client from the shared AWS configuration (environment,
// ~/.aws/config, instance role). region overrides the configured region
// when non-empty.
func New(region string) (*Client, error) {
	opts := session.Options{SharedConfigState: session.SharedConfigEnable}
	if region != "" {
		opts.Config.Region = aws.String(region)
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &Client{
		api: comprehendmedical.New(sess),
		credentials: func(ctx context.Context) error {
			_, err := sess.Config.Credentials.GetWithContext(ctx)
			return err
		},
	}, nil
}

// Name implements oracle.Oracle.
func (c *Client) Name() string { return "comprehend" }

// Ping implements oracle.Oracle by resolving AWS credentials. It does not
// call the service, which is billed per character.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.credentials(ctx); err != nil {
		return fmt.Errorf("%w: aws credentials: %v", oracle.ErrUnavailable, err)
	}
	return nil
}

// Tokenize implements oracle.Tokenizer with the rule tokenizer.
func (c *Client) Tokenize(ctx context.Context, text string) ([]oracle.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rules.Tokenize(text), nil
}

// Recognize implements oracle.Recognizer.
func (c *Client) Recognize(ctx context.Context, text string) ([]oracle.Span, error) {
	if text == "" {
		return nil, nil
	}
	if len(text) > MaxTextBytes {
		return nil, fmt.Errorf("comprehend: text is %d bytes, limit is %d", len(text), MaxTextBytes)
	}

	out, err := c.api.DetectPHIWithContext(ctx, &comprehendmedical.DetectPHIInput{Text: aws.String(text)})
	if err != nil {
		return nil, fmt.Errorf("comprehend DetectPHI: %w", err)
	}

	ri := oracle.NewRuneIndex(text)
	spans := make([]oracle.Span, 0, len(out.Entities))
	for _, e := range out.Entities {
		if e == nil {
			continue
		}
		start := ri.ByteOffset(int(aws.Int64Value(e.BeginOffset)))
		end := ri.ByteOffset(int(aws.Int64Value(e.EndOffset)))
		if start < 0 || end < 0 {
			continue
		}
		spans = append(spans, oracle.Span{
			Text:  aws.StringValue(e.Text),
			Label: mapType(aws.StringValue(e.Type)),
			Start: start,
			End:   end,
		})
	}
	return oracle.ValidateSpans(text, spans), nil
}

func mapType(t string) oracle.Label {
	switch t {
	case "NAME":
		return oracle.LabelPerson
	case "ADDRESS":
		return oracle.LabelFac
	case "DATE":
		return oracle.LabelDate
	default:
		return oracle.LabelOther
	}
}
