package protocol

import (
	"fmt"
	"net/url"

	"golang.org/x/net/http/httpguts"
)

// ValidateCallbackURL parses raw as a URL, requires it to carry a scheme,
// and ensures it is safe to embed verbatim in a link header value (it must
// not contain characters that would corrupt the header field).
func ValidateCallbackURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("protocol: callback is not a valid URL: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("protocol: callback URL %q has no scheme", raw)
	}
	if !httpguts.ValidHeaderFieldValue(raw) {
		return nil, fmt.Errorf("protocol: callback URL %q is not a valid header field value", raw)
	}
	return parsed, nil
}
