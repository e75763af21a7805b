package imaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeBase64 turns the base64 text handed over by a file-read collaborator
// into raw bytes. A data URL prefix is stripped and both the standard and
// URL-safe alphabets are accepted, padded or not.
func DecodeBase64(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrDecode)
		}
		s = s[i+1:]
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, fmt.Errorf("%w: empty base64 payload", ErrDecode)
	}

	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: base64: %w", ErrDecode, lastErr)
}
