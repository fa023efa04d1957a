package usecase

import (
	"context"
	"fmt"
	"sync"
)

// ChatLocker serializes turns per chat. Two Submit calls on the same chat
// never run their model round-trips concurrently.
type ChatLocker struct {
	mu    sync.Mutex
	locks map[string]*chatSlot
}

type chatSlot struct {
	sem      chan struct{}
	refCount int
}

// NewChatLocker creates an empty locker.
func NewChatLocker() *ChatLocker {
	return &ChatLocker{locks: make(map[string]*chatSlot)}
}

// Lock blocks until the chat is free or ctx is done. The returned unlock
// func must be called exactly once.
func (l *ChatLocker) Lock(ctx context.Context, chatID string) (unlock func(), err error) {
	l.mu.Lock()
	slot, ok := l.locks[chatID]
	if !ok {
		slot = &chatSlot{sem: make(chan struct{}, 1)}
		l.locks[chatID] = slot
	}
	slot.refCount++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				l.release(chatID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(chatID, slot)
		return nil, fmt.Errorf("chat lock: %w", ctx.Err())
	}
}

func (l *ChatLocker) release(chatID string, slot *chatSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refCount--
	if slot.refCount == 0 {
		delete(l.locks, chatID)
	}
}

// ActiveCount returns the number of chats with held or pending locks.
func (l *ChatLocker) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
