package gameboot

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Unit is a resumable piece of work. The Scheduler calls Poll once per tick until Poll reports done, or returns an
// error. Poll is never called again after it has reported done.
type Unit interface {
	Poll(ctx context.Context) (done bool, err error)
}

// UnitFunc adapts a function into a Unit.
type UnitFunc func(ctx context.Context) (bool, error)

// Poll implements Unit.
func (f UnitFunc) Poll(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Func is a completion callback.
type Func func()

// Step returns a Unit that runs fn on its first poll and is done as soon as fn returns without error.
func Step(fn func(ctx context.Context) error) Unit {
	return UnitFunc(func(ctx context.Context) (bool, error) {
		if err := fn(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// steps runs one function per poll.
type steps struct {
	fns  []func(ctx context.Context) error
	next int
}

// Steps returns a Unit that runs one of fns per poll, yielding to the rest of the stage in between. It is done once
// the last function has returned.
func Steps(fns ...func(ctx context.Context) error) Unit {
	return &steps{fns: fns}
}

// Poll implements Unit.
func (s *steps) Poll(ctx context.Context) (bool, error) {
	if s.next >= len(s.fns) {
		return true, nil
	}
	if err := s.fns[s.next](ctx); err != nil {
		return false, err
	}
	s.next++
	return s.next == len(s.fns), nil
}

// background runs fn on its own goroutine and reports back over a channel.
type background struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Go returns a Unit that starts fn on a new goroutine when first polled, and is done when fn returns. Use it for work
// that blocks, such as disk or network access, so that the rest of the stage keeps moving.
func Go(fn func(ctx context.Context) error) Unit {
	return &background{fn: fn}
}

// Poll implements Unit.
func (b *background) Poll(ctx context.Context) (bool, error) {
	if b.done == nil {
		b.done = make(chan error, 1)
		go func() {
			b.done <- b.fn(ctx)
		}()
	}

	select {
	case err := <-b.done:
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// Parallel returns a Unit that runs each of fns concurrently in an errgroup. It is done when all of them have
// returned, and fails with the first error if any of them fail.
func Parallel(fns ...func(ctx context.Context) error) Unit {
	return Go(func(ctx context.Context) error {
		grp, grpCtx := errgroup.WithContext(ctx)
		for _, fn := range fns {
			grp.Go(func() error {
				return fn(grpCtx)
			})
		}
		return grp.Wait()
	})
}

// Until returns a Unit that is done on the first poll where cond returns true.
func Until(cond func() bool) Unit {
	return UnitFunc(func(context.Context) (bool, error) {
		return cond(), nil
	})
}

// frames waits for a number of ticks.
type frames struct {
	remaining int
}

// Frames returns a Unit that yields for n ticks before it is done. Frames(0) is done on the first poll.
func Frames(n int) Unit {
	return &frames{remaining: n}
}

// Poll implements Unit.
func (f *frames) Poll(context.Context) (bool, error) {
	if f.remaining <= 0 {
		return true, nil
	}
	f.remaining--
	return false, nil
}

// sequence polls its units one after another.
type sequence struct {
	units []Unit
	next  int
}

// Sequence returns a Unit that runs units in order. When a unit finishes, the next one is polled right away, in the
// same tick.
func Sequence(units ...Unit) Unit {
	return &sequence{units: units}
}

// Poll implements Unit.
func (s *sequence) Poll(ctx context.Context) (bool, error) {
	for s.next < len(s.units) {
		done, err := s.units[s.next].Poll(ctx)
		if err != nil || !done {
			return false, err
		}
		s.next++
	}
	return true, nil
}

// NoOp (no operation) is a convenience Unit you can use when you want a unit that does nothing.
var NoOp Unit = UnitFunc(func(context.Context) (bool, error) {
	return true, nil
})
