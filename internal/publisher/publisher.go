// Package publisher serves a directory as a timestamp-ordered feed over
// HTTP (GET current / by-timestamp, POST subscribe, POST unsubscribe) and
// pushes new elements to subscribers via the delivery engine.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"p3sub/internal/config"
	"p3sub/internal/delivery"
	"p3sub/internal/feedindex"
	"p3sub/internal/logging"
	"p3sub/internal/protocol"
	"p3sub/internal/registry"
	"p3sub/internal/watcher"
)

// Options configures a Publisher.
type Options struct {
	Config *config.PublisherConfig
	Log    *logging.Logger
	Client delivery.HTTPDoer
	Now    func() time.Time
}

// Publisher owns the feed index, subscription registry, delivery engine,
// directory watcher, and HTTP server for one feed directory.
type Publisher struct {
	log  *logging.Logger
	now  func() time.Time
	lock sync.Mutex

	feedDir string

	index    *feedindex.Index
	registry *registry.Registry
	engine   *delivery.Engine
	watcher  *watcher.Watcher

	subscribeRateLimit  int
	subscribeRateWindow time.Duration
	rateMu              sync.Mutex
	subscribeEvents     []time.Time

	feedPath        string
	subscribePath   string
	unsubscribePath string
	feedURL         string
	subscribeURL    string
	unsubscribeURL  string

	server *http.Server
}

// New constructs a Publisher from opts. It creates the feed directory if it
// does not already exist.
func New(opts Options) (*Publisher, error) {
	if opts.Config == nil {
		return nil, errors.New("publisher: config must be provided")
	}
	log := opts.Log
	if log == nil {
		log = logging.L()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	listen, err := url.Parse(opts.Config.ListenURL)
	if err != nil {
		return nil, fmt.Errorf("publisher: invalid listen URL %q: %w", opts.Config.ListenURL, err)
	}
	if listen.Scheme != "http" {
		return nil, fmt.Errorf("publisher: listen URL scheme must be http, got %q", listen.Scheme)
	}

	if err := os.MkdirAll(opts.Config.FeedDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("publisher: create feed directory: %w", err)
	}

	feedPath := listen.Path
	if feedPath == "" {
		feedPath = "/"
	}
	subscribePath := strings.TrimSuffix(feedPath, "/") + "/sub"
	unsubscribePath := strings.TrimSuffix(feedPath, "/") + "/unsub"

	origin := listen.Scheme + "://" + listen.Host
	rateLimit := opts.Config.SubscribeRateLimit
	rateWindow := opts.Config.SubscribeRateWindow
	if rateLimit <= 0 || rateWindow <= 0 {
		rateLimit = config.DefaultSubscribeRateLimit
		rateWindow = time.Duration(config.DefaultSubscribeRateWindowMS) * time.Millisecond
	}

	p := &Publisher{
		log:                 log,
		now:                 now,
		feedDir:             opts.Config.FeedDirectory,
		index:               feedindex.New(opts.Config.FeedDirectory, log),
		registry:            registry.New(),
		subscribeRateLimit:  rateLimit,
		subscribeRateWindow: rateWindow,
		feedPath:            feedPath,
		subscribePath:       subscribePath,
		unsubscribePath:     unsubscribePath,
		feedURL:             origin + feedPath,
		subscribeURL:        origin + subscribePath,
		unsubscribeURL:      origin + unsubscribePath,
	}

	p.engine = delivery.New(delivery.Options{
		Index:          p.index,
		Registry:       p.registry,
		Lock:           &p.lock,
		Client:         opts.Client,
		Log:            log,
		UnsubscribeURL: p.unsubscribeURL,
		FeedURL:        p.feedURL,
	})
	p.watcher = watcher.New(opts.Config.FeedDirectory, &p.lock, p.index, p.engine, log)

	mux := http.NewServeMux()
	p.Register(mux)
	p.server = &http.Server{Addr: listen.Host, Handler: logging.HTTPTraceMiddleware(log)(mux)}

	return p, nil
}

// Register attaches the feed, subscribe, and unsubscribe handlers to mux.
func (p *Publisher) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc(p.feedPath, p.handleFeed)
	mux.HandleFunc(p.subscribePath, p.handleSubscribe)
	mux.HandleFunc(p.unsubscribePath, p.handleUnsubscribe)
}

// Run starts the watcher and delivery engine, then serves HTTP until ctx is
// cancelled, performing the shutdown sequence from the ownership model:
// watcher stops first, then the delivery worker, then the HTTP server.
func (p *Publisher) Run(ctx context.Context) error {
	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()

	watcherErrs := make(chan error, 1)
	go func() { watcherErrs <- p.watcher.Run(engineCtx) }()
	go p.engine.Run(engineCtx)

	serveErrs := make(chan error, 1)
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
			return
		}
		serveErrs <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrs:
		cancelEngine()
		p.watcher.Stop()
		p.engine.Stop()
		return err
	}

	p.watcher.Stop()
	p.engine.Stop()
	cancelEngine()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("publisher: shutdown: %w", err)
	}
	return <-serveErrs
}

func (p *Publisher) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeBadRequest(w, "Only GET is supported on the feed path.")
		return
	}

	_, query := protocol.DecodeRequestPath(r.URL.RequestURI())

	var prev, match, next *feedindex.Element
	var ok bool
	if raw, present := query[protocol.ParamTs]; present {
		ts, err := protocol.ParseTimestamp(raw)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("Invalid %s: %v", protocol.ParamTs, err))
			return
		}
		prev, match, next, ok = p.index.At(ts)
	} else {
		prev, match, ok = p.index.Current()
	}

	if !ok {
		w.Header().Set("content-type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "No such element.\n")
		return
	}

	links := []protocol.LinkValue{
		{Rel: protocol.RelCanonical, URL: protocol.AppendQueryParam(p.feedURL, protocol.ParamTs, protocol.FormatTimestamp(match.Mtime))},
		{Rel: protocol.RelSubscribe, URL: p.subscribeURL},
	}
	if prev != nil {
		links = append(links, protocol.LinkValue{Rel: protocol.RelPrev, URL: protocol.AppendQueryParam(p.feedURL, protocol.ParamTs, protocol.FormatTimestamp(prev.Mtime))})
	}
	if next != nil {
		links = append(links, protocol.LinkValue{Rel: protocol.RelNext, URL: protocol.AppendQueryParam(p.feedURL, protocol.ParamTs, protocol.FormatTimestamp(next.Mtime))})
	}

	header := w.Header()
	for _, line := range protocol.BuildLinkHeaderLines(links) {
		header.Add("link", line)
	}
	header.Set("content-type", "text/plain")

	file, err := os.Open(match.Name)
	if err != nil {
		p.log.Error("failed to open feed element", logging.Error(err), logging.String("name", match.Name))
		writeInternalError(w, err)
		return
	}
	defer file.Close()

	w.WriteHeader(http.StatusOK)
	buf := make([]byte, 1024)
	io.CopyBuffer(w, file, buf)
}

func (p *Publisher) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeBadRequest(w, "Only POST is supported on the subscribe path.")
		return
	}
	if !p.allowSubscribe() {
		http.Error(w, "Too many subscribe requests.\n", http.StatusTooManyRequests)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "Malformed form body.")
		return
	}

	subID := r.FormValue(protocol.ParamSubID)
	callback := r.FormValue(protocol.ParamCallback)
	if !protocol.ValidSubID(subID) {
		writeBadRequest(w, fmt.Sprintf("%s must be at least %d characters.", protocol.ParamSubID, protocol.MinSubIDLength))
		return
	}
	if _, err := protocol.ValidateCallbackURL(callback); err != nil {
		writeBadRequest(w, fmt.Sprintf("%s is invalid: %v", protocol.ParamCallback, err))
		return
	}

	fromTs := p.now().UTC()
	if raw := r.FormValue(protocol.ParamTs); raw != "" {
		parsed, err := protocol.ParseTimestamp(raw)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("Invalid %s: %v", protocol.ParamTs, err))
			return
		}
		fromTs = parsed
	}

	p.lock.Lock()
	err := p.registry.Add(subID, callback, fromTs)
	count := p.registry.Len()
	p.lock.Unlock()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	p.log.Debug("subscription added", logging.String("sub_id", subID), logging.Int("subscriber_count", count))

	p.engine.Trigger()

	w.Header().Set("link", protocol.BuildLinkHeaderValue([]protocol.LinkValue{{Rel: protocol.RelUnsubscribe, URL: p.unsubscribeURL}}))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Subscription successful.\n")
}

// allowSubscribe reports whether another subscribe request may proceed under
// the publisher's sliding-window limit: subscribe is the only write path a
// client reaches with no prior registration, so it is the one guarded here.
func (p *Publisher) allowSubscribe() bool {
	if p.subscribeRateLimit <= 0 || p.subscribeRateWindow <= 0 {
		return true
	}
	p.rateMu.Lock()
	defer p.rateMu.Unlock()

	now := p.now()
	cutoff := now.Add(-p.subscribeRateWindow)
	kept := p.subscribeEvents[:0]
	for _, ts := range p.subscribeEvents {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	p.subscribeEvents = kept
	if len(p.subscribeEvents) >= p.subscribeRateLimit {
		return false
	}
	p.subscribeEvents = append(p.subscribeEvents, now)
	return true
}

func (p *Publisher) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeBadRequest(w, "Only POST is supported on the unsubscribe path.")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "Malformed form body.")
		return
	}

	subID := r.FormValue(protocol.ParamSubID)

	p.lock.Lock()
	_, ok := p.registry.Get(subID)
	if ok {
		p.registry.Remove(subID)
	}
	count := p.registry.Len()
	p.lock.Unlock()

	if !ok {
		writeBadRequest(w, fmt.Sprintf("No such subscription: %s", subID))
		return
	}
	p.log.Debug("subscription removed", logging.String("sub_id", subID), logging.Int("subscriber_count", count))

	w.Header().Set("link", protocol.BuildLinkHeaderValue([]protocol.LinkValue{{Rel: protocol.RelSubscribe, URL: p.subscribeURL}}))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Unsubscription successful.\n")
}

func writeBadRequest(w http.ResponseWriter, reason string) {
	w.Header().Set("content-type", "text/plain")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "%s\n", reason)
}

// writeInternalError reports an unexpected handler failure using the
// error-detail format reserved for internal errors, distinct from plain
// client-validation rejections.
func writeInternalError(w http.ResponseWriter, err error) {
	w.Header().Set("content-type", "text/plain")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "ERROR: Cannot serve this request.\n%s\n", err.Error())
}
