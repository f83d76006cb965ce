package backend

import (
	"context"
	"errors"
	"log"
	"sync"
)

// sessionHub fans session changes out to subscribers. While anyone is
// subscribed it watches the session file so changes made by another process
// are delivered too.
type sessionHub struct {
	file    *SessionFile
	resolve func() *Identity
	logger  *log.Logger

	mu      sync.Mutex
	subs    map[uint64]func(*Identity)
	next    uint64
	last    *Identity
	primed  bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newSessionHub(file *SessionFile, resolve func() *Identity, logger *log.Logger) *sessionHub {
	return &sessionHub{
		file:    file,
		resolve: resolve,
		logger:  logger,
		subs:    make(map[uint64]func(*Identity)),
	}
}

func (h *sessionHub) subscribe(fn func(*Identity)) *Subscription {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	if !h.primed {
		h.last = h.resolve()
		h.primed = true
	}
	if len(h.subs) == 1 && h.file != nil {
		h.startWatchLocked()
	}
	h.mu.Unlock()

	return NewSubscription(func() {
		h.mu.Lock()
		delete(h.subs, id)
		if len(h.subs) == 0 {
			h.stopWatchLocked()
		}
		h.mu.Unlock()
	})
}

func (h *sessionHub) startWatchLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.stopped = done

	go func() {
		defer close(done)
		err := h.file.Watch(ctx, func() { h.publish(h.resolve()) })
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Printf("Session watcher stopped: %v", err)
		}
	}()
}

func (h *sessionHub) stopWatchLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// publish delivers id to every subscriber unless it equals the last value sent.
func (h *sessionHub) publish(id *Identity) {
	h.mu.Lock()
	if h.primed && sameIdentity(h.last, id) {
		h.mu.Unlock()
		return
	}
	h.last = id
	h.primed = true
	fns := make([]func(*Identity), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

// close stops the watcher and waits for it to exit.
func (h *sessionHub) close() {
	h.mu.Lock()
	h.subs = make(map[uint64]func(*Identity))
	h.stopWatchLocked()
	done := h.stopped
	h.stopped = nil
	h.mu.Unlock()

	if done != nil {
		<-done
	}
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
