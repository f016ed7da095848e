package vfs

import (
	"strings"
	"sync"

	"github.com/mwantia/vfs/glob"
)

// normalizeFilter strips any leading separators from a glob filter so a
// filter written with a leading "/" lines up with the clean, root-is-""
// paths every event in this module carries.
func normalizeFilter(p glob.Pattern) glob.Pattern {
	return glob.Pattern(strings.TrimLeft(string(p), Separator))
}

// Observer receives events from a subscription.
type Observer interface {
	OnEvent(Event)
	OnError(error)
	OnComplete()
}

// ObserverFunc adapts a plain function into an Observer that ignores
// errors and completion.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
func (f ObserverFunc) OnError(error)   {}
func (f ObserverFunc) OnComplete()     {}

// Subscription is the handle returned by Observe; disposing it stops
// delivery and, per the dispatcher contract, eventually calls the
// observer's OnComplete exactly once.
type Subscription interface {
	Dispose() error
}

// Dispatcher delivers a submitted callable exactly once. Callables from a
// single subscription must be invoked in submission order.
type Dispatcher interface {
	Dispatch(func())
}

// InlineDispatcher invokes callables synchronously on the calling
// goroutine — the mutating thread delivers events before returning.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(fn func()) { fn() }

// WorkerDispatcher drains a buffered queue on a single goroutine per
// subscription, preserving submission order while moving delivery off the
// mutating thread.
type WorkerDispatcher struct {
	queue chan func()
	once  sync.Once
	done  chan struct{}
}

// NewWorkerDispatcher starts a worker goroutine with the given queue
// depth. The goroutine stops once Close is called and the queue drains.
func NewWorkerDispatcher(queueDepth int) *WorkerDispatcher {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	w := &WorkerDispatcher{
		queue: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *WorkerDispatcher) run() {
	for fn := range w.queue {
		fn()
	}
	close(w.done)
}

// Dispatch enqueues fn for delivery by the worker goroutine. It blocks if
// the queue is full.
func (w *WorkerDispatcher) Dispatch(fn func()) {
	w.queue <- fn
}

// Close stops accepting new work and waits for the queue to drain.
func (w *WorkerDispatcher) Close() {
	w.once.Do(func() { close(w.queue) })
	<-w.done
}
