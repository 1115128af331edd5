package protocol

import (
	"fmt"
	"net/url"
)

// Resolve turns a possibly-relative URL into an absolute one relative to
// base: a relative with its own scheme is returned unchanged, otherwise it
// inherits the base's scheme and (if its own netloc is empty) the base's
// netloc, and its path is either used as-is (if absolute) or joined to the
// directory portion of the base path.
func Resolve(base, relative string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("protocol: invalid base URL %q: %w", base, err)
	}
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", fmt.Errorf("protocol: invalid relative URL %q: %w", relative, err)
	}
	return baseURL.ResolveReference(relURL).String(), nil
}
