// Package subscriber implements both subscriber roles: a subscribing
// orchestrator (discover, subscribe, listen, unsubscribe) and a passive
// listener (listen only, pre-shared subscription id). Both compose one
// shared PUT-handling core rather than deriving from a common base type.
package subscriber

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"p3sub/internal/logging"
	"p3sub/internal/protocol"
	"p3sub/internal/subfeed"
)

// Listener is the concrete PUT-accepting core shared by both subscriber
// variants. It validates every inbound PUT against its configured listen
// path and owned subscription id, persists accepted bodies via its
// subfeed.Store, and tracks the most recently advertised unsubscribe URI.
type Listener struct {
	listenPath  string
	subID       string
	feedURL     string
	receivedDir string
	log         *logging.Logger
	store       *subfeed.Store

	mu             sync.Mutex
	unsubscribeURL string
}

// Options configures a Listener.
type Options struct {
	ListenPath  string
	SubID       string
	FeedURL     string
	ReceivedDir string
	Log         *logging.Logger
	Diff        bool
	Codec       subfeed.Codec
}

// NewListener constructs a Listener and ensures the received-elements
// directory exists.
func NewListener(opts Options) (*Listener, error) {
	log := opts.Log
	if log == nil {
		log = logging.L()
	}
	store, err := subfeed.New(opts.ReceivedDir, opts.Diff, opts.Codec, log)
	if err != nil {
		return nil, err
	}
	return &Listener{
		listenPath:  opts.ListenPath,
		subID:       opts.SubID,
		feedURL:     opts.FeedURL,
		receivedDir: opts.ReceivedDir,
		log:         log,
		store:       store,
	}, nil
}

// UnsubscribeURL returns the most recently advertised unsubscribe URI, or
// "" if none has been received yet.
func (l *Listener) UnsubscribeURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unsubscribeURL
}

// ServeHTTP implements the PUT-handling core. Only PUT is accepted; any
// other method or a failed validation returns 400 with a reason.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeReason(w, "Only PUT is supported.")
		return
	}

	path, query := protocol.DecodeRequestPath(r.URL.RequestURI())
	if path != l.listenPath {
		writeReason(w, fmt.Sprintf("Unexpected path: %s", path))
		return
	}

	rawTs, ok := query[protocol.ParamTs]
	if !ok {
		l.log.Info("no p3sub-ts in URL query")
		writeReason(w, fmt.Sprintf("Missing %s.", protocol.ParamTs))
		return
	}
	if _, err := protocol.ParseTimestamp(rawTs); err != nil {
		writeReason(w, fmt.Sprintf("Invalid %s: %v", protocol.ParamTs, err))
		return
	}

	subID, ok := query[protocol.ParamSubID]
	if !ok {
		l.log.Info("no p3sub-subid in URL query")
		writeReason(w, fmt.Sprintf("Missing %s.", protocol.ParamSubID))
		return
	}
	if subID != l.subID {
		l.log.Info("wrong p3sub-subid in URL query", logging.String("got", subID), logging.String("want", l.subID))
		writeReason(w, "Wrong subscription id.")
		return
	}

	linkRels := protocol.ParseLinkHeaderFromHTTP(r.Header, l.log)

	if prevURL, present := linkRels[protocol.RelPrev]; present {
		// Deliberately weak: a string-prefix check against the feed URI
		// rather than a full URL comparison.
		if l.feedURL != "" && !strings.HasPrefix(prevURL, l.feedURL) {
			l.log.Info("wrong prev link", logging.String("got", prevURL), logging.String("want_prefix", l.feedURL))
			writeReason(w, "Wrong prev link.")
			return
		}
	}

	unsubURL, present := linkRels[protocol.RelUnsubscribe]
	if !present {
		l.log.Info("no unsubscribe link in message")
		writeReason(w, fmt.Sprintf("Missing %s link.", protocol.RelUnsubscribe))
		return
	}
	unsubURL, err := protocol.Resolve(l.feedURL, unsubURL)
	if err != nil {
		writeReason(w, fmt.Sprintf("Invalid %s link.", protocol.RelUnsubscribe))
		return
	}
	l.mu.Lock()
	l.unsubscribeURL = unsubURL
	l.mu.Unlock()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeReason(w, "Cannot read request body.")
		return
	}
	if err := l.store.Write(rawTs, body); err != nil {
		l.log.Error("failed to persist received element", logging.Error(err), logging.String("ts", rawTs))
		writeReason(w, "Cannot persist received element.")
		return
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func writeReason(w http.ResponseWriter, reason string) {
	w.Header().Set("content-type", "text/plain")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "%s\n", reason)
}
