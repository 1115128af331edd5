package protocol

import (
	"net/url"
	"strings"
)

// DecodeRequestPath splits a request path at its first `?` and decodes the
// query string into a key/value map. A query pair without `=` yields
// key -> key rather than key -> "" — an idiosyncrasy of the original
// implementation that callers (and tests) must preserve.
func DecodeRequestPath(pathWithQuery string) (path string, query map[string]string) {
	splitPath := strings.SplitN(pathWithQuery, "?", 2)
	query = make(map[string]string)
	if len(splitPath) < 2 {
		return splitPath[0], query
	}

	for _, pair := range strings.Split(splitPath[1], "&") {
		if pair == "" {
			continue
		}
		eq := strings.Index(pair, "=")
		if eq < 0 {
			key := unescape(pair)
			query[key] = key
			continue
		}
		key := unescape(pair[:eq])
		value := unescape(pair[eq+1:])
		query[key] = value
	}
	return splitPath[0], query
}

// AppendQueryParam appends a single percent-encoded key=value pair to
// rawURL, using `?` if it has no query component yet and `&` otherwise.
func AppendQueryParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
