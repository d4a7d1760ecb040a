package reconciler

import (
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

// keyLocks 让同一个格子上的操作依次执行，不同格子之间互不影响
type keyLocks struct {
	mu    sync.Mutex
	locks map[domain.Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (l *keyLocks) acquire(k domain.Key) *keyLock {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[domain.Key]*keyLock)
	}
	kl, exists := l.locks[k]
	if !exists {
		kl = &keyLock{}
		l.locks[k] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return kl
}

func (l *keyLocks) release(k domain.Key, kl *keyLock) {
	kl.mu.Unlock()

	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, k)
	}
	l.mu.Unlock()
}

func (l *keyLocks) lock(k domain.Key) func() {
	kl := l.acquire(k)
	return func() {
		l.release(k, kl)
	}
}

// lockAll 要求 keys 已排序且无重复，按顺序加锁可以避免两个批量操作互相死锁
func (l *keyLocks) lockAll(keys []domain.Key) func() {
	held := make([]*keyLock, len(keys))
	for i, k := range keys {
		held[i] = l.acquire(k)
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			l.release(keys[i], held[i])
		}
	}
}

func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
