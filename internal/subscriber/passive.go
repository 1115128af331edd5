package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"p3sub/internal/logging"
	"p3sub/internal/subfeed"
)

// Passive composes a Listener with no discover/subscribe/unsubscribe
// lifecycle: the subscription id is supplied by the operator out of band,
// and the listener merely accepts PUTs addressed to it.
type Passive struct {
	listener *Listener
	server   *http.Server
}

// PassiveOptions configures a Passive subscriber.
type PassiveOptions struct {
	ListenURL   string
	SubID       string
	FeedURL     string
	ReceivedDir string
	Diff        bool
	Codec       subfeed.Codec
	Log         *logging.Logger
}

// NewPassive constructs a Passive subscriber.
func NewPassive(opts PassiveOptions) (*Passive, error) {
	log := opts.Log
	if log == nil {
		log = logging.L()
	}
	listenURL, err := url.Parse(opts.ListenURL)
	if err != nil {
		return nil, fmt.Errorf("subscriber: invalid listen URL %q: %w", opts.ListenURL, err)
	}
	if listenURL.Scheme != "http" {
		return nil, fmt.Errorf("subscriber: listen URL scheme must be http, got %q", listenURL.Scheme)
	}

	// ListenPath is this listener's own configured path, derived from its
	// own listen URL rather than some shared or global value.
	listener, err := NewListener(Options{
		ListenPath:  listenURL.Path,
		SubID:       opts.SubID,
		FeedURL:     opts.FeedURL,
		ReceivedDir: opts.ReceivedDir,
		Log:         log,
		Diff:        opts.Diff,
		Codec:       opts.Codec,
	})
	if err != nil {
		return nil, err
	}

	return &Passive{
		listener: listener,
		server:   &http.Server{Addr: listenURL.Host, Handler: listener},
	}, nil
}

// Listen runs the PUT-accepting HTTP server until ctx is cancelled.
func (p *Passive) Listen(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("subscriber: shutdown: %w", err)
	}
	return <-errc
}
