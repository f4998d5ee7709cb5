package gameboot

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCallbacksDispatch(t *testing.T) {
	t.Run("it runs callbacks in registration order", func(t *testing.T) {
		r := &recorder{}
		c := newCallbacks(zap.NewNop())
		for _, name := range []string{"one", "two", "three"} {
			if c.enqueue(r.callback(name)) != admitQueued {
				t.Fatalf("expected %q to be queued", name)
			}
		}
		verifyCountEq(t, c.pending(), 3)

		c.dispatch()
		verifyStringsEqual(t, []string{"one", "two", "three"}, r.actual())
		verifyCountEq(t, c.pending(), 0)
	})

	t.Run("it only dispatches once", func(t *testing.T) {
		r := &recorder{}
		c := newCallbacks(zap.NewNop())
		c.enqueue(r.callback("one"))

		c.dispatch()
		c.dispatch()
		verifyCountEq(t, r.count("one"), 1)
	})

	t.Run("callbacks registered after dispatch must run immediately", func(t *testing.T) {
		c := newCallbacks(zap.NewNop())
		c.dispatch()
		if c.enqueue(func() {}) != admitImmediate {
			t.Fatal("expected a completed registry to hand the callback back")
		}
	})

	t.Run("callbacks registered during dispatch must run immediately", func(t *testing.T) {
		r := &recorder{}
		c := newCallbacks(zap.NewNop())
		c.enqueue(func() {
			r.add("outer")
			if c.enqueue(r.callback("inner")) == admitImmediate {
				c.invoke(r.callback("inner"))
			}
		})
		c.enqueue(r.callback("last"))

		c.dispatch()
		verifyStringsEqual(t, []string{"outer", "inner", "last"}, r.actual())
	})

	t.Run("a panicking callback does not stop the rest", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		r := &recorder{}
		c := newCallbacks(zap.New(core))
		c.enqueue(func() { panic("boom") })
		c.enqueue(r.callback("after"))

		c.dispatch()
		verifyStringsEqual(t, []string{"after"}, r.actual())
		verifyCountEq(t, logs.FilterMessage("completion callback panicked").Len(), 1)
	})
}

func TestCallbacksDiscard(t *testing.T) {
	t.Run("it returns queued callbacks and rejects new ones", func(t *testing.T) {
		r := &recorder{}
		c := newCallbacks(zap.NewNop())
		c.enqueue(r.callback("one"))
		c.enqueue(r.callback("two"))

		dropped := c.discard()
		verifyCountEq(t, len(dropped), 2)
		if c.enqueue(r.callback("three")) != admitRejected {
			t.Fatal("expected a discarded registry to reject callbacks")
		}

		c.dispatch()
		verifyCountEq(t, len(r.actual()), 0)
	})

	t.Run("it has no effect after dispatch", func(t *testing.T) {
		c := newCallbacks(zap.NewNop())
		c.enqueue(func() {})
		c.dispatch()

		if dropped := c.discard(); dropped != nil {
			t.Fatalf("expected nothing to be dropped, got %d callbacks", len(dropped))
		}
		if c.enqueue(func() {}) != admitImmediate {
			t.Fatal("expected a completed registry to stay completed")
		}
	})
}
