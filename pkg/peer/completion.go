package peer

import "sync"

// Result carries either a value of T or an Error, the shape every
// completion handler receives.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok reports whether the Result completed without error.
func (r Result[T]) Ok() bool { return r.Err == nil }

// CompletionHandler is the single delivery extension point: one
// method, with three concrete adapters below for the callback, await,
// and future styles, and room for a library consumer to add its own
// by implementing the interface directly.
type CompletionHandler[T any] interface {
	Complete(Result[T])
}

// CallbackHandler adapts a plain func(Result[T]) into a
// CompletionHandler, invoked directly on the session's Lane: the
// direct synchronous callback style.
type CallbackHandler[T any] func(Result[T])

func (f CallbackHandler[T]) Complete(r Result[T]) { f(r) }

// AwaitHandler delivers its Result over a buffered channel of size 1,
// the cooperative await style: a caller running its own
// goroutine (or any cooperative scheduler) blocks on Recv until the
// lane posts the completion.
type AwaitHandler[T any] struct {
	ch chan Result[T]
}

// NewAwaitHandler constructs an AwaitHandler ready to receive exactly
// one completion.
func NewAwaitHandler[T any]() *AwaitHandler[T] {
	return &AwaitHandler[T]{ch: make(chan Result[T], 1)}
}

func (h *AwaitHandler[T]) Complete(r Result[T]) { h.ch <- r }

// Recv blocks until the completion arrives and returns it. A second
// Recv blocks until another Complete, which a single request never
// sends; callers must not share one AwaitHandler across multiple
// requests.
func (h *AwaitHandler[T]) Recv() Result[T] { return <-h.ch }

// Chan exposes the underlying channel for callers that want to select
// on it alongside other cooperative events instead of blocking in Recv.
func (h *AwaitHandler[T]) Chan() <-chan Result[T] { return h.ch }

// FutureHandler delivers its Result into a shared slot guarded by a
// sync.Once-style gate, the future-bound polling style: a
// caller may poll TryGet from any goroutine without blocking, or call
// Wait to block until the value is ready.
type FutureHandler[T any] struct {
	mu    sync.Mutex
	ready bool
	cond  *sync.Cond
	value Result[T]
}

// NewFutureHandler constructs an empty, not-yet-ready FutureHandler.
func NewFutureHandler[T any]() *FutureHandler[T] {
	f := &FutureHandler[T]{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *FutureHandler[T]) Complete(r Result[T]) {
	f.mu.Lock()
	f.value = r
	f.ready = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// TryGet returns the Result and true if it is already available,
// without blocking.
func (f *FutureHandler[T]) TryGet() (Result[T], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.ready
}

// Wait blocks until the Result is available and returns it.
func (f *FutureHandler[T]) Wait() Result[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.ready {
		f.cond.Wait()
	}
	return f.value
}
