// Package lock provides crawler.RunLock implementations. Local serializes
// runs inside one process; package redis serializes them across replicas.
package lock

import (
	"context"
	"sync"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Local is an in-process run lock.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{}
}

// TryAcquire takes the lock without waiting. The returned release is safe to
// call more than once.
func (l *Local) TryAcquire(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, crawler.ErrLockHeld
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}
