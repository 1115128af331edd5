package protocol

import (
	"net/http"
	"regexp"
	"strings"

	"p3sub/internal/logging"
)

// LinkValue is one `<URL>; rel="NAME"` entry of a link header.
type LinkValue struct {
	Rel string
	URL string
}

var relParamPattern = regexp.MustCompile(`^rel="([^"]+)"$`)

// ParseLinkHeader decodes the `link` header values of an HTTP response or
// request into a rel -> URL map. It accepts both the multi-line form (one
// value per call) and the comma-joined single-line form, since both appear
// on the wire: the feed GET response uses one line per relation, the PUT
// callback joins every relation into one line. Unknown or malformed entries
// are skipped, not fatal.
func ParseLinkHeader(values []string, log *logging.Logger) map[string]string {
	ret := make(map[string]string)
	if log == nil {
		log = logging.L()
	}

	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			semi := strings.Index(part, ";")
			if semi < 0 {
				log.Debug("link header entry has no parameter, skipping", logging.String("value", part))
				continue
			}

			url := strings.TrimSpace(part[:semi])
			url = strings.TrimPrefix(url, "<")
			url = strings.TrimSuffix(url, ">")

			par := strings.TrimSpace(part[semi+1:])
			m := relParamPattern.FindStringSubmatch(par)
			if m == nil {
				log.Debug("could not parse link rel", logging.String("value", part))
				continue
			}

			ret[m[1]] = url
		}
	}
	return ret
}

// ParseLinkHeaderFromHTTP extracts and decodes the `link` header values from
// an HTTP header set. The header name match is case-insensitive via the
// standard http.Header canonicalization.
func ParseLinkHeaderFromHTTP(header http.Header, log *logging.Logger) map[string]string {
	return ParseLinkHeader(header.Values("Link"), log)
}

// BuildLinkHeaderLines renders each relation as its own `link` header line,
// the form the publisher's feed GET response uses.
func BuildLinkHeaderLines(values []LinkValue) []string {
	lines := make([]string, 0, len(values))
	for _, v := range values {
		lines = append(lines, formatLinkValue(v))
	}
	return lines
}

// BuildLinkHeaderValue joins every relation into one comma-separated line,
// the form the PUT callback uses.
func BuildLinkHeaderValue(values []LinkValue) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, formatLinkValue(v))
	}
	return strings.Join(parts, ", ")
}

func formatLinkValue(v LinkValue) string {
	return "<" + v.URL + ">; rel=\"" + v.Rel + "\""
}
