package protocol

import (
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	cases := []string{
		"2024-01-01T00:00:00.000000Z",
		"2024-01-01T00:00:05.500000Z",
		"1999-12-31T23:59:59.999999Z",
	}
	for _, s := range cases {
		ts, err := ParseTimestamp(s)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) returned error: %v", s, err)
		}
		if got := FormatTimestamp(ts); got != s {
			t.Fatalf("round trip mismatch: got %q, want %q", got, s)
		}
	}
}

func TestFormatTimestampConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	ts := time.Date(2024, 1, 1, 1, 0, 0, 0, loc)
	got := FormatTimestamp(ts)
	want := "2024-01-01T00:00:00.000000Z"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	if _, err := ParseTimestamp("not-a-timestamp"); err == nil {
		t.Fatalf("expected error for invalid timestamp")
	}
}

func TestDecodeRequestPathBasic(t *testing.T) {
	path, query := DecodeRequestPath("/feed?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid=abc")
	if path != "/feed" {
		t.Fatalf("expected path /feed, got %q", path)
	}
	if query["p3sub-ts"] != "2024-01-01T00:00:00.000000Z" {
		t.Fatalf("unexpected p3sub-ts: %q", query["p3sub-ts"])
	}
	if query["p3sub-subid"] != "abc" {
		t.Fatalf("unexpected p3sub-subid: %q", query["p3sub-subid"])
	}
}

func TestDecodeRequestPathNoQuery(t *testing.T) {
	path, query := DecodeRequestPath("/feed")
	if path != "/feed" {
		t.Fatalf("expected path /feed, got %q", path)
	}
	if len(query) != 0 {
		t.Fatalf("expected empty query, got %v", query)
	}
}

func TestDecodeRequestPathKeyWithoutEquals(t *testing.T) {
	_, query := DecodeRequestPath("/feed?lonely")
	if query["lonely"] != "lonely" {
		t.Fatalf("expected key-without-value idiosyncrasy to map to itself, got %v", query)
	}
}

func TestDecodeRequestPathPercentEncoded(t *testing.T) {
	_, query := DecodeRequestPath("/feed?p3sub-callback=http%3A%2F%2Fhost%2Fcb")
	if query["p3sub-callback"] != "http://host/cb" {
		t.Fatalf("expected decoded callback URL, got %q", query["p3sub-callback"])
	}
}

func TestParseLinkHeaderMultiLine(t *testing.T) {
	values := []string{
		`<http://h/u1>; rel="a"`,
		`<http://h/u2>; rel="b"`,
	}
	got := ParseLinkHeader(values, nil)
	if got["a"] != "http://h/u1" || got["b"] != "http://h/u2" {
		t.Fatalf("unexpected parse result: %v", got)
	}
}

func TestParseLinkHeaderCommaJoined(t *testing.T) {
	values := []string{`<http://h/u1>; rel="a", <http://h/u2>; rel="b"`}
	got := ParseLinkHeader(values, nil)
	if got["a"] != "http://h/u1" || got["b"] != "http://h/u2" {
		t.Fatalf("unexpected parse result: %v", got)
	}
}

func TestParseLinkHeaderSkipsMalformed(t *testing.T) {
	values := []string{`no-semicolon-here`, `<http://h/u1>; rel="a"`}
	got := ParseLinkHeader(values, nil)
	if len(got) != 1 || got["a"] != "http://h/u1" {
		t.Fatalf("expected malformed entry to be skipped, got %v", got)
	}
}

func TestLinkHeaderRoundTrip(t *testing.T) {
	values := []LinkValue{
		{Rel: "canonical", URL: "http://h/feed?p3sub-ts=x"},
		{Rel: "p3sub-subscribe", URL: "http://h/feed/sub"},
	}
	line := BuildLinkHeaderValue(values)
	got := ParseLinkHeader([]string{line}, nil)
	if len(got) != len(values) {
		t.Fatalf("expected %d entries, got %d", len(values), len(got))
	}
	for _, v := range values {
		if got[v.Rel] != v.URL {
			t.Fatalf("round trip mismatch for %q: got %q, want %q", v.Rel, got[v.Rel], v.URL)
		}
	}
}

func TestResolveAbsoluteUnchanged(t *testing.T) {
	got, err := Resolve("http://h/a/b", "http://other/x")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "http://other/x" {
		t.Fatalf("expected absolute relative to pass through unchanged, got %q", got)
	}
}

func TestResolveRelativePath(t *testing.T) {
	got, err := Resolve("http://h/a/b", "x")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "http://h/a/x" {
		t.Fatalf("expected http://h/a/x, got %q", got)
	}
}

func TestResolveAbsolutePath(t *testing.T) {
	got, err := Resolve("http://h/a/b", "/c/d")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "http://h/c/d" {
		t.Fatalf("expected http://h/c/d, got %q", got)
	}
}

func TestGenerateSubIDLengthAndAlphabet(t *testing.T) {
	id := GenerateSubID()
	if len(id) != SubIDGeneratedLength {
		t.Fatalf("expected length %d, got %d", SubIDGeneratedLength, len(id))
	}
	if !ValidSubID(id) {
		t.Fatalf("generated id should satisfy ValidSubID")
	}
	for _, c := range id {
		if !containsRune(subIDAlphabet, c) {
			t.Fatalf("generated id contains character outside alphabet: %q", c)
		}
	}
}

func TestGenerateSubIDUnique(t *testing.T) {
	a := GenerateSubID()
	b := GenerateSubID()
	if a == b {
		t.Fatalf("expected two generated ids to differ")
	}
}

func TestValidSubIDRejectsShort(t *testing.T) {
	if ValidSubID("short") {
		t.Fatalf("expected short id to be invalid")
	}
}

func TestAppendQueryParam(t *testing.T) {
	got := AppendQueryParam("http://h/feed", "p3sub-ts", "2024-01-01T00:00:00.000000Z")
	want := "http://h/feed?p3sub-ts=2024-01-01T00%3A00%3A00.000000Z"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	got2 := AppendQueryParam(got, "p3sub-subid", "abc")
	if got2 != want+"&p3sub-subid=abc" {
		t.Fatalf("expected second param appended with &, got %q", got2)
	}
}

func TestValidateCallbackURL(t *testing.T) {
	if _, err := ValidateCallbackURL("http://host/cb"); err != nil {
		t.Fatalf("expected valid URL to pass, got %v", err)
	}
	if _, err := ValidateCallbackURL("not a url at all \x7f"); err == nil {
		t.Fatalf("expected invalid header field value to be rejected")
	}
	if _, err := ValidateCallbackURL("/relative/path"); err == nil {
		t.Fatalf("expected missing scheme to be rejected")
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
