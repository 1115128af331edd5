package subscriber

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const subID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestListener(t *testing.T, feedURL string) *Listener {
	t.Helper()
	l, err := NewListener(Options{
		ListenPath:  "/cb",
		SubID:       subID,
		FeedURL:     feedURL,
		ReceivedDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewListener returned error: %v", err)
	}
	return l
}

func TestListenerAcceptsValidPut(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/cb?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid="+subID, strings.NewReader("payload"))
	req.Header.Set("link", `<http://publisher/feed/unsub>; rel="p3sub-unsubscribe"`)

	l.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if l.UnsubscribeURL() != "http://publisher/feed/unsub" {
		t.Fatalf("expected unsubscribe URL to be stored, got %q", l.UnsubscribeURL())
	}

	data, err := os.ReadFile(filepath.Join(l.receivedDir, "2024-01-01T00:00:00.000000Z.dat"))
	if err != nil {
		t.Fatalf("expected received file, got error: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected persisted body: %q", data)
	}
}

func TestListenerRejectsWrongPath(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/wrong?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid="+subID, nil)
	req.Header.Set("link", `<http://publisher/feed/unsub>; rel="p3sub-unsubscribe"`)

	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong path, got %d", rec.Code)
	}
}

func TestListenerRejectsWrongSubID(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/cb?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid=someone-else", nil)
	req.Header.Set("link", `<http://publisher/feed/unsub>; rel="p3sub-unsubscribe"`)

	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong subid, got %d", rec.Code)
	}
}

func TestListenerRejectsMissingUnsubscribeLink(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/cb?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid="+subID, nil)

	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing unsubscribe link, got %d", rec.Code)
	}
}

func TestListenerValidatesPrevLinkPrefix(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/cb?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid="+subID, nil)
	req.Header.Set("link", `<http://publisher/feed/unsub>; rel="p3sub-unsubscribe", <http://other-host/feed?p3sub-ts=x>; rel="prev"`)

	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for prev link not prefixed by feed URI, got %d", rec.Code)
	}
}

func TestListenerAcceptsValidPrevLinkPrefix(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/cb?p3sub-ts=2024-01-01T00:00:00.000000Z&p3sub-subid="+subID, nil)
	req.Header.Set("link", `<http://publisher/feed/unsub>; rel="p3sub-unsubscribe", <http://feed-host/feed?p3sub-ts=x>; rel="prev"`)

	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListenerRejectsNonPut(t *testing.T) {
	l := newTestListener(t, "http://feed-host/feed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cb", nil)

	l.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-PUT method, got %d", rec.Code)
	}
}
