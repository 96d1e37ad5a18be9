// Package hub tracks connected push-channel viewers and fans payloads out to them.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Subscriber is one open push-channel connection.
type Subscriber interface {
	ID() string
	Open() bool
	Send(payload []byte) error
}

// Registry is the set of current subscribers. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscriber)}
}

// Add registers s. Adding the same id twice keeps the latest subscriber.
func (r *Registry) Add(s Subscriber) {
	r.mu.Lock()
	r.subs[s.ID()] = s
	n := len(r.subs)
	r.mu.Unlock()
	log.Debug().Str("subscriber_id", s.ID()).Int("subscribers", n).Msg("subscriber added")
}

// Remove drops the subscriber with the given id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.subs[id]
	delete(r.subs, id)
	n := len(r.subs)
	r.mu.Unlock()
	if ok {
		log.Debug().Str("subscriber_id", id).Int("subscribers", n).Msg("subscriber removed")
	}
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Snapshot returns the subscribers registered at the time of the call.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Broadcast sends payload to every subscriber that is open at send time and returns how
// many sends succeeded. Sends run concurrently so one stalled viewer costs at most one
// write deadline; Broadcast returns once every send has finished, which keeps the order
// of successive broadcasts per subscriber. Failures are skipped; the connection's own
// read loop removes it.
func (r *Registry) Broadcast(payload []byte) int {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, s := range r.Snapshot() {
		if !s.Open() {
			continue
		}
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			if err := s.Send(payload); err != nil {
				log.Debug().Err(err).Str("subscriber_id", s.ID()).Msg("send failed; skipping subscriber")
				return
			}
			delivered.Add(1)
		}(s)
	}
	wg.Wait()
	return int(delivered.Load())
}
