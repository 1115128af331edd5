package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"p3sub/internal/logging"
	"p3sub/internal/protocol"
	"p3sub/internal/subfeed"
)

// HTTPDoer is the subset of *http.Client the subscriber orchestration
// needs; tests supply a fake to avoid real network I/O.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Subscribing composes a Listener with the discover/subscribe/unsubscribe
// lifecycle. It is one concrete orchestrator over the shared listener, not
// a subclass of it.
type Subscribing struct {
	listener *Listener
	client   HTTPDoer
	log      *logging.Logger

	feedURL   string
	listenURL string
	subID     string
	server    *http.Server
}

// SubscribingOptions configures a Subscribing orchestrator.
type SubscribingOptions struct {
	FeedURL     string
	ListenURL   string
	ReceivedDir string
	Diff        bool
	Codec       subfeed.Codec
	Client      HTTPDoer
	Log         *logging.Logger
}

// NewSubscribing constructs a Subscribing orchestrator, generating a fresh
// subscription id for this run.
func NewSubscribing(opts SubscribingOptions) (*Subscribing, error) {
	log := opts.Log
	if log == nil {
		log = logging.L()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	listenURL, err := url.Parse(opts.ListenURL)
	if err != nil {
		return nil, fmt.Errorf("subscriber: invalid listen URL %q: %w", opts.ListenURL, err)
	}
	if listenURL.Scheme != "http" {
		return nil, fmt.Errorf("subscriber: listen URL scheme must be http, got %q", listenURL.Scheme)
	}

	subID := protocol.GenerateSubID()
	listener, err := NewListener(Options{
		ListenPath:  listenURL.Path,
		SubID:       subID,
		FeedURL:     opts.FeedURL,
		ReceivedDir: opts.ReceivedDir,
		Log:         log,
		Diff:        opts.Diff,
		Codec:       opts.Codec,
	})
	if err != nil {
		return nil, err
	}

	return &Subscribing{
		listener:  listener,
		client:    client,
		log:       log,
		feedURL:   opts.FeedURL,
		listenURL: opts.ListenURL,
		subID:     subID,
		server:    &http.Server{Addr: listenURL.Host, Handler: listener},
	}, nil
}

// Discover GETs the feed URI and resolves its advertised subscribe
// endpoint to absolute form.
func (s *Subscribing) Discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return "", fmt.Errorf("subscriber: build discover request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("subscriber: discover GET %s: %w", s.feedURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("subscriber: discover expected 200, got %d", resp.StatusCode)
	}

	linkRels := protocol.ParseLinkHeaderFromHTTP(resp.Header, s.log)
	rel, ok := linkRels[protocol.RelSubscribe]
	if !ok {
		return "", fmt.Errorf("subscriber: %s is not a p3sub feed, no %s link", s.feedURL, protocol.RelSubscribe)
	}
	absolute, err := protocol.Resolve(s.feedURL, rel)
	if err != nil {
		return "", fmt.Errorf("subscriber: resolve subscribe link: %w", err)
	}
	return absolute, nil
}

// Subscribe POSTs to subscribeURL and stores the absolute unsubscribe URI
// the response advertises.
func (s *Subscribing) Subscribe(ctx context.Context, subscribeURL string, fromTs time.Time) error {
	form := url.Values{
		protocol.ParamSubID:    {s.subID},
		protocol.ParamCallback: {s.listenURL},
	}
	if !fromTs.IsZero() {
		form.Set(protocol.ParamTs, protocol.FormatTimestamp(fromTs))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, subscribeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("subscriber: build subscribe request: %w", err)
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("subscriber: subscribe POST %s: %w", subscribeURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscriber: subscription failed, HTTP status %d", resp.StatusCode)
	}

	linkRels := protocol.ParseLinkHeaderFromHTTP(resp.Header, s.log)
	unsubURL, ok := linkRels[protocol.RelUnsubscribe]
	if !ok {
		return fmt.Errorf("subscriber: subscription response carries no %s link", protocol.RelUnsubscribe)
	}
	absolute, err := protocol.Resolve(subscribeURL, unsubURL)
	if err != nil {
		return fmt.Errorf("subscriber: resolve unsubscribe link: %w", err)
	}
	s.listener.mu.Lock()
	s.listener.unsubscribeURL = absolute
	s.listener.mu.Unlock()
	return nil
}

// Listen runs the PUT-accepting HTTP server until ctx is cancelled.
func (s *Subscribing) Listen(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("subscriber: shutdown: %w", err)
	}
	return <-errc
}

// Unsubscribe POSTs to the stored unsubscribe URI. A missing unsubscribe
// URI is logged as a warning rather than treated as fatal, since shutdown
// should proceed regardless.
func (s *Subscribing) Unsubscribe(ctx context.Context) error {
	unsubURL := s.listener.UnsubscribeURL()
	if unsubURL == "" {
		s.log.Warn("cannot unsubscribe, have no unsubscribe URI")
		return nil
	}

	form := url.Values{protocol.ParamSubID: {s.subID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, unsubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("subscriber: build unsubscribe request: %w", err)
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("subscriber: unsubscribe POST %s: %w", unsubURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscriber: unsubscription failed, HTTP status %d", resp.StatusCode)
	}
	return nil
}

// SubID returns the subscription id this orchestrator generated.
func (s *Subscribing) SubID() string {
	return s.subID
}
