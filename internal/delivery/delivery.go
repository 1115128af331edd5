// Package delivery implements the publisher's single-worker delivery
// engine: on a wake, it walks the subscription registry against the feed
// index and PUTs undelivered elements to each subscriber in order.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"p3sub/internal/feedindex"
	"p3sub/internal/logging"
	"p3sub/internal/protocol"
	"p3sub/internal/registry"
)

// HTTPDoer is the subset of *http.Client the engine needs; tests supply a
// fake to avoid real network I/O.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Engine is the publisher's delivery worker. It is not itself safe for
// concurrent use from more than one goroutine; Run owns it for its
// lifetime and Trigger/Stop are the only methods other goroutines call.
type Engine struct {
	index          *feedindex.Index
	registry       *registry.Registry
	lock           sync.Locker
	client         HTTPDoer
	log            *logging.Logger
	unsubscribeURL string
	feedURL        string

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// Options configures a new Engine.
type Options struct {
	Index          *feedindex.Index
	Registry       *registry.Registry
	Lock           sync.Locker
	Client         HTTPDoer
	Log            *logging.Logger
	UnsubscribeURL string
	FeedURL        string
}

// New constructs an Engine from the supplied collaborators.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logging.L()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Engine{
		index:          opts.Index,
		registry:       opts.Registry,
		lock:           opts.Lock,
		client:         client,
		log:            log,
		unsubscribeURL: opts.UnsubscribeURL,
		feedURL:        opts.FeedURL,
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Trigger wakes the worker. Multiple triggers between cycles collapse to
// one, since a cycle always re-reads the current state.
func (e *Engine) Trigger() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run processes cycles until Stop is called or ctx is cancelled. It blocks
// until shutdown completes; callers typically run it in its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-e.wake:
			e.runCycle(ctx)
		}
	}
}

// Stop signals the worker to exit and waits for its current cycle, if any,
// to finish.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	<-e.done
}

// pendingUpdate stages a high-water-mark advance until the full cycle
// completes, per the staged-commit design: a subscriber's progress is not
// applied mid-cycle so a failure partway through a cycle cannot leave
// readers observing a partially-updated registry.
type pendingUpdate struct {
	subID string
	newTs time.Time
}

func (e *Engine) runCycle(ctx context.Context) {
	e.lock.Lock()
	defer e.lock.Unlock()

	subs := e.registry.Snapshot()
	updates := make([]pendingUpdate, 0, len(subs))

	for _, sub := range subs {
		prev, pending := e.index.After(sub.LastSuccessfulTs)
		if len(pending) == 0 {
			continue
		}

		newTs := sub.LastSuccessfulTs
		cur := prev
		for i := range pending {
			elem := pending[i]
			if err := e.deliver(ctx, sub, cur, elem); err != nil {
				e.log.Warn("cannot reach subscriber, skipping this round",
					logging.String("sub_id", sub.SubID),
					logging.String("callback", sub.CallbackURI),
					logging.Error(err))
				break
			}
			newTs = elem.Mtime
			cur = &elem
		}

		if newTs.After(sub.LastSuccessfulTs) {
			updates = append(updates, pendingUpdate{subID: sub.SubID, newTs: newTs})
		}
	}

	for _, u := range updates {
		e.registry.Update(u.subID, u.newTs)
	}
}

func (e *Engine) deliver(ctx context.Context, sub registry.Subscription, prev *feedindex.Element, elem feedindex.Element) error {
	body, err := os.Open(elem.Name)
	if err != nil {
		return fmt.Errorf("delivery: open %s: %w", elem.Name, err)
	}
	defer body.Close()

	info, err := body.Stat()
	if err != nil {
		return fmt.Errorf("delivery: stat %s: %w", elem.Name, err)
	}

	targetURL := protocol.AppendQueryParam(sub.CallbackURI, protocol.ParamTs, protocol.FormatTimestamp(elem.Mtime))
	targetURL = protocol.AppendQueryParam(targetURL, protocol.ParamSubID, sub.SubID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, targetURL, body)
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("content-type", "application/octet-stream")
	req.Header.Set("link", e.linkHeaderValue(prev))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: PUT %s: %w", targetURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delivery: PUT %s returned status %d", targetURL, resp.StatusCode)
	}
	return nil
}

func (e *Engine) linkHeaderValue(prev *feedindex.Element) string {
	values := []protocol.LinkValue{{Rel: protocol.RelUnsubscribe, URL: e.unsubscribeURL}}
	if prev != nil {
		prevURL := protocol.AppendQueryParam(e.feedURL, protocol.ParamTs, protocol.FormatTimestamp(prev.Mtime))
		values = append(values, protocol.LinkValue{Rel: protocol.RelPrev, URL: prevURL})
	}
	return protocol.BuildLinkHeaderValue(values)
}
