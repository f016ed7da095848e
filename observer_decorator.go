package vfs

import "sync"

// observerDecorator adapts one caller-supplied Observer into N child
// subscriptions and merges their events back. It sends a synthetic start
// event before any forwardee is installed, translates every forwarded
// event's path back into this node's namespace, and calls the caller's
// OnComplete exactly once — either when Dispose is called or when every
// forwardee completes spontaneously.
type observerDecorator struct {
	mu         sync.Mutex
	outer      Observer
	dispatcher Dispatcher
	forwardees []Subscription
	active     int
	completed  bool
	disposed   bool
}

func newObserverDecorator(outer Observer, dispatcher Dispatcher) *observerDecorator {
	if dispatcher == nil {
		dispatcher = InlineDispatcher{}
	}
	return &observerDecorator{outer: outer, dispatcher: dispatcher}
}

// start delivers the synthetic start event. Call it before installing
// forwardees, so the caller's first delivered event is always the start.
func (d *observerDecorator) start() {
	d.dispatcher.Dispatch(func() { d.outer.OnEvent(Event{Kind: EventStart}) })
}

// addForwardee registers a child subscription for cascaded disposal. If
// this decorator has already been disposed, sub is disposed immediately.
func (d *observerDecorator) addForwardee(sub Subscription) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		sub.Dispose()
		return
	}
	d.forwardees = append(d.forwardees, sub)
	d.active++
	d.mu.Unlock()
}

// deliver forwards a translated event to the caller, unless disposal has
// already completed.
func (d *observerDecorator) deliver(e Event) {
	d.mu.Lock()
	disposed := d.disposed
	d.mu.Unlock()
	if disposed {
		return
	}
	d.dispatcher.Dispatch(func() { d.outer.OnEvent(e) })
}

// forwardeeCompleted is called when one child subscription completes on
// its own (its backend disposed). When the last one does, the decorator
// completes too.
func (d *observerDecorator) forwardeeCompleted() {
	d.mu.Lock()
	d.active--
	shouldComplete := d.active <= 0 && !d.completed
	if shouldComplete {
		d.completed = true
	}
	d.mu.Unlock()

	if shouldComplete {
		d.dispatcher.Dispatch(func() { d.outer.OnComplete() })
	}
}

// Dispose disposes every forwardee and calls the caller's OnComplete
// exactly once.
func (d *observerDecorator) Dispose() error {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return nil
	}
	d.disposed = true
	forwardees := d.forwardees
	alreadyCompleted := d.completed
	d.completed = true
	d.mu.Unlock()

	var agg AggregateError
	for _, f := range forwardees {
		if err := f.Dispose(); err != nil {
			agg.Add(err)
		}
	}

	if !alreadyCompleted {
		d.dispatcher.Dispatch(func() { d.outer.OnComplete() })
	}
	return agg.Err()
}

// translatingObserver adapts a child backend's Observer calls back into
// the parent namespace via toParent, then forwards to dec.
type translatingObserver struct {
	dec      *observerDecorator
	toParent func(string) (string, bool)
}

func (t translatingObserver) OnEvent(e Event) {
	if e.Kind == EventStart {
		// The decorator already delivered its own start; a forwardee's
		// start is inner bookkeeping.
		return
	}
	path, ok := t.toParent(e.Path)
	if !ok {
		return
	}
	e.Path = path
	if e.NewPath != "" {
		if np, ok := t.toParent(e.NewPath); ok {
			e.NewPath = np
		}
	}
	t.dec.deliver(e)
}

func (t translatingObserver) OnError(err error) {
	t.dec.deliver(Event{Kind: EventError, Err: err})
}

func (t translatingObserver) OnComplete() {
	t.dec.forwardeeCompleted()
}
