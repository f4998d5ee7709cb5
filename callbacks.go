package gameboot

import (
	"sync"

	"go.uber.org/zap"
)

// admission tells the caller of callbacks.enqueue what happened to its callback.
type admission uint8

const (
	admitQueued    admission = iota // Held until dispatch.
	admitImmediate                  // Already dispatched: the caller must invoke the callback itself.
	admitRejected                   // Discarded registry: the callback belongs somewhere else.
)

// callbacks is the queue of completion callbacks owned by a single Loader. It moves from collecting callbacks to
// completed exactly once, or to discarded if the Loader is released before it completes.
type callbacks struct {
	sync.Mutex // Protects queue, completed and discarded.

	queue     []Func
	completed bool
	discarded bool
	logger    *zap.Logger
}

func newCallbacks(logger *zap.Logger) *callbacks {
	return &callbacks{logger: logger}
}

// enqueue appends fn to the queue, unless the registry has already dispatched or was discarded. It never invokes fn,
// so it is safe to call while holding other locks.
func (c *callbacks) enqueue(fn Func) admission {
	c.Lock()
	defer c.Unlock()

	switch {
	case c.discarded:
		return admitRejected
	case c.completed:
		return admitImmediate
	}
	c.queue = append(c.queue, fn)
	return admitQueued
}

// dispatch marks the registry completed and then invokes every queued callback in registration order. Callbacks that
// register further callbacks during dispatch see a completed registry, so those run immediately.
// dispatch only has an effect the first time it's called.
func (c *callbacks) dispatch() {
	c.Lock()
	if c.completed || c.discarded {
		c.Unlock()
		return
	}
	c.completed = true
	queue := c.queue
	c.queue = nil
	c.Unlock()

	for _, fn := range queue {
		c.invoke(fn)
	}
}

// discard stops accepting new callbacks and returns the ones that were still queued.
func (c *callbacks) discard() []Func {
	c.Lock()
	defer c.Unlock()

	if c.completed || c.discarded {
		return nil
	}
	c.discarded = true
	dropped := c.queue
	c.queue = nil
	return dropped
}

// pending returns the number of callbacks waiting for dispatch.
func (c *callbacks) pending() int {
	c.Lock()
	defer c.Unlock()

	return len(c.queue)
}

// invoke runs fn, recovering and logging any panic so one broken callback doesn't starve the rest.
func (c *callbacks) invoke(fn Func) {
	invoke(c.logger, fn)
}

func invoke(logger *zap.Logger, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("completion callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
