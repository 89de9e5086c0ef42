// Package util holds small pieces of plumbing shared across the daemon's
// packages, modeled on the event-fan-out idiom trollibox's player/cache.go
// and player/mpd/mpd.go build against (util.Emitter) but whose definition
// was never part of the retrieved source.
package util

import (
	"reflect"
	"sync"
	"time"
)

// Emitter is a fan-out broadcaster. Every listener gets its own channel;
// Emit never blocks on a slow listener, it drops the event for that
// listener instead.
//
// Release debounces bursts of identical (by dynamic type) events: an event
// emitted again within Release of the previous one of the same type is
// dropped. A zero Release disables debouncing.
type Emitter struct {
	Release time.Duration

	mu        sync.Mutex
	listeners map[chan interface{}]struct{}
	lastType  reflect.Type
	lastEmit  time.Time
}

// Listen registers a new listener and returns its channel. The channel is
// buffered so bursts don't immediately start dropping events.
func (e *Emitter) Listen() chan interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = map[chan interface{}]struct{}{}
	}
	ch := make(chan interface{}, 8)
	e.listeners[ch] = struct{}{}
	return ch
}

// Unlisten removes and closes a listener previously returned by Listen.
func (e *Emitter) Unlisten(ch chan interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.listeners[ch]; ok {
		delete(e.listeners, ch)
		close(ch)
	}
}

// Emit broadcasts event to all current listeners.
func (e *Emitter) Emit(event interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	t := reflect.TypeOf(event)
	if e.Release > 0 && t == e.lastType && now.Sub(e.lastEmit) < e.Release {
		return
	}
	e.lastType = t
	e.lastEmit = now

	for ch := range e.listeners {
		select {
		case ch <- event:
		default:
			// Listener is backed up; drop rather than stall the emitter.
		}
	}
}
