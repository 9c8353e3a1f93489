package peer

import "sync"

// Lane is a serializing executor: a logical single-threaded
// lane that guarantees at most one posted task runs at a time. Every
// session runs on its own Lane; the router realm runs on one Lane of
// its own.
type Lane struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewLane creates and starts a Lane with the given task queue depth.
// A depth of 0 makes posting synchronous with draining.
func NewLane(depth int) *Lane {
	l := &Lane{
		tasks: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Lane) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			l.drain()
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// drain runs any tasks still queued at shutdown so their completions
// fire (with whatever terminal state the caller already set) instead
// of vanishing silently.
func (l *Lane) drain() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		default:
			return
		}
	}
}

// Post enqueues fn to run on the lane. Posting after Stop is a no-op:
// callers that need a guaranteed-run completion must check session
// state themselves.
func (l *Lane) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// Stop signals the lane to drain its queue and exit, then waits for
// it to do so.
func (l *Lane) Stop() {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
}
