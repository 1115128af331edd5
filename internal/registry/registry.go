// Package registry holds the publisher's in-memory subscription table:
// subscription id -> (callback URI, last-successful delivery timestamp).
package registry

import (
	"errors"
	"fmt"
	"time"

	"p3sub/internal/protocol"
)

// ErrSubIDTooShort is returned when a caller tries to register a
// subscription id shorter than protocol.MinSubIDLength.
var ErrSubIDTooShort = errors.New("registry: subscription id too short")

// ErrCallbackInvalid is returned when a callback URI does not parse or has
// no scheme.
var ErrCallbackInvalid = errors.New("registry: callback URI invalid")

// Subscription is one registered subscriber's delivery state.
type Subscription struct {
	SubID            string
	CallbackURI      string
	LastSuccessfulTs time.Time
}

// Registry is the subscription table. It is not safe for concurrent use on
// its own: callers (the publisher's feed-and-subs lock) serialize access.
type Registry struct {
	subs map[string]Subscription
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{subs: make(map[string]Subscription)}
}

// Add inserts or replaces a subscription. fromTs defaults to now (UTC) if
// the zero value is passed.
func (r *Registry) Add(subID, callbackURI string, fromTs time.Time) error {
	if !protocol.ValidSubID(subID) {
		return fmt.Errorf("%w: %q has %d characters, need at least %d", ErrSubIDTooShort, subID, len(subID), protocol.MinSubIDLength)
	}
	if _, err := protocol.ValidateCallbackURL(callbackURI); err != nil {
		return fmt.Errorf("%w: %v", ErrCallbackInvalid, err)
	}
	if fromTs.IsZero() {
		fromTs = time.Now().UTC()
	}
	r.subs[subID] = Subscription{SubID: subID, CallbackURI: callbackURI, LastSuccessfulTs: fromTs.UTC()}
	return nil
}

// Remove deletes a subscription. It is a no-op if subID is unknown.
func (r *Registry) Remove(subID string) {
	delete(r.subs, subID)
}

// Get returns the subscription for subID, if any.
func (r *Registry) Get(subID string) (Subscription, bool) {
	sub, ok := r.subs[subID]
	return sub, ok
}

// Snapshot returns a consistent copy of every subscription, for the delivery
// engine to iterate without racing concurrent Add/Remove calls.
func (r *Registry) Snapshot() []Subscription {
	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out
}

// Update advances subID's high-water mark to newTs, but only if the
// subscription still exists — it may have been removed concurrently by an
// unsubscribe that ran between Snapshot and this call.
func (r *Registry) Update(subID string, newTs time.Time) {
	sub, ok := r.subs[subID]
	if !ok {
		return
	}
	sub.LastSuccessfulTs = newTs.UTC()
	r.subs[subID] = sub
}

// Len reports how many subscriptions are currently registered.
func (r *Registry) Len() int {
	return len(r.subs)
}
