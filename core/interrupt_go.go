//go:build !tinygo

package core

import "sync"

// irqLock masks the timer interrupt. On regular Go the interrupt is a
// goroutine, so masking is a mutex.
type irqLock struct {
	mu sync.Mutex
}

func (l *irqLock) lock() {
	l.mu.Lock()
}

func (l *irqLock) unlock() {
	l.mu.Unlock()
}
