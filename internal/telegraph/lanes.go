package telegraph

import "sync"

// lanes runs jobs FIFO per chat. Each chat with queued work has exactly one
// worker goroutine; the worker exits when its queue drains. Jobs for
// different chats run concurrently.
type lanes struct {
	mu     sync.Mutex
	queues map[int64][]func() // present key = worker running
	closed bool
	wg     sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{queues: make(map[int64][]func())}
}

// submit queues job on chatID's lane. It returns false once close has been
// called.
func (l *lanes) submit(chatID int64, job func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	q, running := l.queues[chatID]
	l.queues[chatID] = append(q, job)
	if !running {
		l.wg.Add(1)
		go l.drain(chatID)
	}
	return true
}

func (l *lanes) drain(chatID int64) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queues[chatID]
		if len(q) == 0 {
			delete(l.queues, chatID)
			l.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		l.queues[chatID] = q[1:]
		l.mu.Unlock()

		job()
	}
}

// active returns the number of chats with queued or running work.
func (l *lanes) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// close stops accepting jobs and blocks until every queued job has run.
func (l *lanes) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}
