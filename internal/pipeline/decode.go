package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrInvalidEncoding is returned for uploads that are not UTF-8 text.
	ErrInvalidEncoding = errors.New("input is not valid UTF-8 text")

	// ErrEmptyInput is returned for uploads with no non-whitespace content.
	ErrEmptyInput = errors.New("input is empty")
)

// Decode validates raw as UTF-8 and strips a leading byte order mark.
func Decode(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", ErrInvalidEncoding
	}
	b, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	text := string(b)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}
