package reconcile

import (
	"context"
	"sync"
)

// keyedLock serializes work per user. Waiters block until the holder
// releases or their context ends.
type keyedLock struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[int64]*userLock)}
}

func (k *keyedLock) acquire(ctx context.Context, id int64) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.put(id, l)
			})
		}, nil
	case <-ctx.Done():
		k.put(id, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) put(id int64, l *userLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}
