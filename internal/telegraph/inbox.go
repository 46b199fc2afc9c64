package telegraph

import "sync"

// Inbox is the buffered inbound channel shared by platform adapters. Deliver
// may be called from SDK callbacks concurrently with Close without panicking
// on a closed channel.
type Inbox struct {
	ch   chan InboundMessage
	stop chan struct{}

	once sync.Once
	mu   sync.RWMutex // held for reading while delivering
}

// NewInbox creates an Inbox buffering up to size events.
func NewInbox(size int) *Inbox {
	return &Inbox{
		ch:   make(chan InboundMessage, size),
		stop: make(chan struct{}),
	}
}

// C returns the receive side handed out by Adapter.Listen.
func (b *Inbox) C() <-chan InboundMessage { return b.ch }

// Deliver queues msg, blocking while the buffer is full. It reports false
// when the inbox was closed before msg could be queued.
func (b *Inbox) Deliver(msg InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	select {
	case <-b.stop:
		return false
	default:
	}
	select {
	case b.ch <- msg:
		return true
	case <-b.stop:
		return false
	}
}

// Close unblocks pending deliveries and closes the channel. Safe to call
// more than once.
func (b *Inbox) Close() {
	b.once.Do(func() {
		close(b.stop)
		b.mu.Lock()
		close(b.ch)
		b.mu.Unlock()
	})
}
