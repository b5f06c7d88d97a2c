// Package locker issues per-name exclusive locks so that at most one
// deployment pipeline runs for a given process name at a time. Locks
// held past a staleness threshold are presumed abandoned by a crashed
// holder and forcibly reclaimed by the next acquirer.
package locker

import (
	"log"
	"sync"
	"time"
)

func NewRegistry(staleAfter time.Duration) *Registry {
	return &Registry{
		staleAfter: staleAfter,
		locks:      make(map[string]*resourceLock),
		now:        time.Now,
	}
}

type Registry struct {
	staleAfter time.Duration
	mu         sync.Mutex
	locks      map[string]*resourceLock

	now func() time.Time
}

type resourceLock struct {
	ch        chan struct{}
	touchedOn time.Time
}

// Lock is a handle to an acquired per-name lock. Release must be
// called on every exit path of the holder.
type Lock struct {
	registry *Registry
	name     string
	lock     *resourceLock
}

// Acquire blocks until the lock for name is free, creating it lazily
// on first use. If the current holder has been outstanding longer than
// the staleness threshold the lock is discarded and a fresh one issued,
// so a crashed worker cannot wedge later operations on that name.
func (r *Registry) Acquire(name string) *Lock {
	poll := r.staleAfter / 10
	if poll > time.Second {
		poll = time.Second
	}
	if poll <= 0 {
		poll = time.Millisecond
	}
	for {
		r.mu.Lock()
		l, ok := r.locks[name]
		if !ok {
			l = &resourceLock{ch: make(chan struct{}, 1)}
			r.locks[name] = l
		}
		r.mu.Unlock()

		select {
		case l.ch <- struct{}{}:
			r.mu.Lock()
			// The lock may have been reclaimed while we were blocked.
			if r.locks[name] != l {
				r.mu.Unlock()
				continue
			}
			l.touchedOn = r.now()
			r.mu.Unlock()
			return &Lock{registry: r, name: name, lock: l}
		case <-time.After(poll):
			r.reclaim(name, l)
		}
	}
}

// reclaim discards a lock that has been outstanding past the staleness
// threshold so the next acquirer gets a fresh one.
func (r *Registry) reclaim(name string, stale *resourceLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.locks[name]
	if !ok || current != stale {
		return
	}
	if r.now().Sub(current.touchedOn) < r.staleAfter {
		return
	}
	log.Printf("reclaiming stale lock for %q", name)
	delete(r.locks, name)
}

// ReclaimStale removes every lock whose holder has been outstanding
// past the staleness threshold and returns the reclaimed names. Called
// periodically by the background sweep job.
func (r *Registry) ReclaimStale() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reclaimed []string
	for name, l := range r.locks {
		select {
		case l.ch <- struct{}{}:
			// Not held; release immediately and leave it in place.
			<-l.ch
		default:
			if r.now().Sub(l.touchedOn) >= r.staleAfter {
				log.Printf("reclaiming stale lock for %q", name)
				delete(r.locks, name)
				reclaimed = append(reclaimed, name)
			}
		}
	}
	return reclaimed
}

// TouchInterval is how often a live holder should re-touch its lock to
// stay clear of the staleness threshold.
func (r *Registry) TouchInterval() time.Duration {
	interval := r.staleAfter / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}

// Touch refreshes the hold timestamp so a long-running holder is not
// mistaken for a crashed one. Touching a reclaimed lock is a no-op.
func (l *Lock) Touch() {
	l.registry.mu.Lock()
	defer l.registry.mu.Unlock()
	if l.registry.locks[l.name] == l.lock {
		l.lock.touchedOn = l.registry.now()
	}
}

// Release frees the lock. Releasing a lock that was reclaimed from
// under its holder is a no-op.
func (l *Lock) Release() {
	l.registry.mu.Lock()
	current, ok := l.registry.locks[l.name]
	l.registry.mu.Unlock()
	if !ok || current != l.lock {
		return
	}
	select {
	case <-l.lock.ch:
	default:
	}
}
