package process

import "sync/atomic"

// lineQueue is a bounded FIFO fed by one reader goroutine. When full, the
// oldest line is discarded so a slow consumer never stalls the pipe.
type lineQueue struct {
	ch      chan string
	eof     chan struct{}
	dropped atomic.Uint64
}

func newLineQueue(size int) *lineQueue {
	return &lineQueue{
		ch:  make(chan string, size),
		eof: make(chan struct{}),
	}
}

// push must only be called from the queue's reader goroutine.
func (q *lineQueue) push(line string) {
	for {
		select {
		case q.ch <- line:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

func (q *lineQueue) tryPop() (string, bool) {
	select {
	case line := <-q.ch:
		return line, true
	default:
		return "", false
	}
}

func (q *lineQueue) close() {
	close(q.eof)
}
