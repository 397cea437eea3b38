// Package lock provides keyed mutual exclusion for reconciliations.
//
// Local serializes goroutines inside one process. Redis extends the same
// guarantee across replicas sharing a Redis instance. Both acquire keys in
// sorted order so overlapping key sets cannot deadlock.
package lock

import (
	"context"
	"sort"
	"sync"

	pkgstrings "contactsvc/pkg/platform/strings"
)

// Local is an in-process keyed lock. The zero value is not usable; call NewLocal.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Acquire holds every key until the returned release is called. It honors
// ctx while waiting; on cancellation no key remains held.
func (l *Local) Acquire(ctx context.Context, keys []string) (func(), error) {
	ordered := orderKeys(keys)
	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := l.acquireOne(ctx, key); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}
	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *Local) acquireOne(ctx context.Context, key string) error {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, s)
		return ctx.Err()
	}
}

func (l *Local) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		s := l.slots[keys[i]]
		l.mu.Unlock()
		<-s.ch
		l.drop(keys[i], s)
	}
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Held reports how many keys currently have holders or waiters.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func orderKeys(keys []string) []string {
	ordered := pkgstrings.Dedupe(keys)
	sort.Strings(ordered)
	return ordered
}
