package usecase

import (
	"context"
	"sync"

	"blog-job-pipeline/internal/domain/ports/adapter"
)

var _ adapter.JobLocker = (*keyedLocker)(nil)

// keyedLocker is an in-process per-id mutex. Entries are dropped once no
// goroutine holds or waits for them.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() adapter.JobLocker {
	return &keyedLocker{locks: make(map[string]*keyLock)}
}

func (k *keyedLocker) Lock(ctx context.Context, id string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(id, l)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(id, l)
		})
	}, nil
}

func (k *keyedLocker) release(id string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}
