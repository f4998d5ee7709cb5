package gameboot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeBootstrapper enqueues its units on Prepare and records Complete.
type fakeBootstrapper struct {
	r        *recorder
	prepared int
	units    map[string]int
	order    []string
	err      error
}

func (f *fakeBootstrapper) Prepare(_ context.Context, l *Loader) error {
	f.prepared++
	if f.err != nil {
		return f.err
	}
	for _, name := range f.order {
		if err := l.Enqueue(name, f.r.unit(name), f.units[name]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBootstrapper) Complete(*Loader) {
	f.r.add("bootstrap-complete")
}

func TestNew(t *testing.T) {
	t.Run("it panics without a host", func(t *testing.T) {
		defer verifyPanicWithMsg(t, panicNilHost)

		New(nil)

		t.Fatal("expected a panic") // Never called if panic is triggered.
	})

	t.Run("returns an uninitialized loader with a unique id", func(t *testing.T) {
		host := NewHost()
		a, b := New(host, WithName("first")), New(host)
		verifyState(t, a, StateUninitialized)
		if a.ID() == "" || a.ID() == b.ID() {
			t.Fatalf("expected distinct ids, got %q and %q", a.ID(), b.ID())
		}
		if a.Name() != "first" || b.Name() != "gameboot" {
			t.Fatalf("expected names %q and %q, got %q and %q", "first", "gameboot", a.Name(), b.Name())
		}
		if a.Scope() != nil {
			t.Fatal("expected no scope before activation")
		}
	})
}

func TestLoaderCallOnComplete(t *testing.T) {
	t.Run("callbacks fire exactly once wherever they were registered", func(t *testing.T) {
		r := &recorder{}
		host := NewHost()
		host.CallOnComplete(r.callback("before-1"))
		host.CallOnComplete(r.callback("before-2"))
		verifyCountEq(t, host.Pending(), 2)

		loader := New(host, fast)
		verifyNilErr(t, loader.Enqueue("work", r.unit("work"), 1))
		live, err := loader.Activate(context.Background())
		verifyNilErr(t, err)
		if !live {
			t.Fatal("expected loader to become live")
		}
		verifyCountEq(t, host.Pending(), 0)

		host.CallOnComplete(r.callback("during-1"))
		loader.CallOnComplete(r.callback("during-2"))
		verifyStringsEqual(t, []string{"before-1", "before-2"}, r.actual())

		verifyNilErr(t, loader.Run(context.Background()))
		verifyState(t, loader, StateCompleted)

		host.CallOnComplete(r.callback("after-1"))
		loader.CallOnComplete(r.callback("after-2"))

		verifyStringsEqual(t, []string{
			"before-1", "before-2", "work", "during-1", "during-2", "after-1", "after-2",
		}, r.actual())
	})

	t.Run("pending callbacks fire before any unit of the first stage", func(t *testing.T) {
		r := &recorder{}
		host := NewHost()
		loader := New(host, fast)

		host.CallOnComplete(func() {
			r.add("X")
			host.CallOnComplete(r.callback("registered-by-X"))
		})
		verifyNilErr(t, loader.Enqueue("first", Step(func(context.Context) error {
			r.add("first")
			host.CallOnComplete(r.callback("registered-by-unit"))
			return nil
		}), 1))

		live, err := loader.Activate(context.Background())
		verifyNilErr(t, err)
		if !live {
			t.Fatal("expected loader to become live")
		}
		verifyStringsEqual(t, []string{"X"}, r.actual())

		verifyNilErr(t, loader.Run(context.Background()))
		verifyStringsEqual(t, []string{"X", "first", "registered-by-X", "registered-by-unit"}, r.actual())
	})

	t.Run("callbacks registered during dispatch fire immediately", func(t *testing.T) {
		r := &recorder{}
		host := NewHost()
		loader := New(host, fast)
		_, err := loader.Activate(context.Background())
		verifyNilErr(t, err)

		loader.CallOnComplete(func() {
			r.add("outer")
			host.CallOnComplete(r.callback("nested"))
		})
		loader.CallOnComplete(r.callback("second"))

		verifyNilErr(t, loader.Run(context.Background()))
		verifyStringsEqual(t, []string{"outer", "nested", "second"}, r.actual())
	})

	t.Run("callbacks on a loader that isn't live yet go to the host", func(t *testing.T) {
		host := NewHost()
		loader := New(host)
		loader.CallOnComplete(func() {})
		loader.CallOnComplete(nil)
		verifyCountEq(t, host.Pending(), 1)
	})
}

func TestLoaderActivate(t *testing.T) {
	t.Run("a second loader is ignored while one is live", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		r := &recorder{}
		host := NewHost()
		completions := 0
		first := New(host, fast, WithLogger(zap.New(core)), WithObserver(ObserverFunc{OnComplete: func() {
			completions++
		}}))
		second := New(host, fast, WithLogger(zap.New(core)), WithObserver(ObserverFunc{OnComplete: func() {
			completions++
		}}))

		verifyNilErr(t, first.Enqueue("work", r.unit("work"), 1))
		verifyNilErr(t, second.Enqueue("work", r.unit("work"), 1))
		host.CallOnComplete(r.callback("cb"))

		live, err := first.Activate(context.Background())
		verifyNilErr(t, err)
		if !live {
			t.Fatal("expected first loader to become live")
		}
		live, err = second.Activate(context.Background())
		verifyNilErr(t, err)
		if live {
			t.Fatal("expected second loader to be ignored")
		}
		verifyState(t, second, StateDestroyed)
		if host.Live() != first {
			t.Fatal("expected first loader to stay live")
		}
		verifyCountEq(t, logs.FilterMessage("duplicate loader ignored, only one instance may be live").Len(), 1)

		verifyErrorType(t, second.Run(context.Background()), InvalidStateError(destroyedErrorMessage))
		verifyNilErr(t, first.Run(context.Background()))

		verifyCountEq(t, completions, 1)
		verifyCountEq(t, r.count("work"), 1)
		verifyCountEq(t, r.count("cb"), 1)
	})

	t.Run("activating twice does nothing the second time", func(t *testing.T) {
		r := &recorder{}
		boot := &fakeBootstrapper{r: r, units: map[string]int{"core": 1}, order: []string{"core"}}
		host := NewHost()
		loader := New(host, fast, WithBootstrapper(boot))

		for i := 0; i < 2; i++ {
			live, err := loader.Activate(context.Background())
			verifyNilErr(t, err)
			if !live {
				t.Fatal("expected loader to stay live")
			}
		}
		verifyCountEq(t, boot.prepared, 1)
		verifyNilErr(t, loader.Run(context.Background()))
		verifyStringsEqual(t, []string{"core", "bootstrap-complete"}, r.actual())
	})

	t.Run("the bootstrapper completes after earlier callbacks", func(t *testing.T) {
		r := &recorder{}
		boot := &fakeBootstrapper{
			r:     r,
			units: map[string]int{"core": 1, "modules": 2},
			order: []string{"modules", "core"},
		}
		host := NewHost()
		host.CallOnComplete(func() {
			r.add("pending")
			host.CallOnComplete(r.callback("queued-by-pending"))
		})
		loader := New(host, fast, WithBootstrapper(boot))

		live, err := loader.Boot(context.Background())
		verifyNilErr(t, err)
		if !live {
			t.Fatal("expected loader to become live")
		}
		verifyStringsEqual(t, []string{"pending", "core", "modules", "queued-by-pending", "bootstrap-complete"},
			r.actual())
		scope := loader.Scope()
		if scope == nil || scope.Name() != ScopeName {
			t.Fatalf("expected scope %q, got %v", ScopeName, scope)
		}
	})

	t.Run("a failing bootstrapper leaves the host without a live loader", func(t *testing.T) {
		failure := errors.New("no save data")
		boot := &fakeBootstrapper{r: &recorder{}, err: failure}
		host := NewHost()
		loader := New(host, WithBootstrapper(boot))

		live, err := loader.Activate(context.Background())
		if live || !errors.Is(err, failure) {
			t.Fatalf("expected activation to fail with %v, got live=%t err=%v", failure, live, err)
		}
		if !strings.HasPrefix(err.Error(), "prepare "+loader.Name()+": ") {
			t.Fatalf("expected the error to name the loader, got %q", err.Error())
		}
		if host.Live() != nil {
			t.Fatal("expected no live loader")
		}
		verifyState(t, loader, StateDestroyed)
	})

	t.Run("it cannot run before activation", func(t *testing.T) {
		loader := New(NewHost())
		verifyErrorType(t, loader.Run(context.Background()), InvalidStateError(inactiveErrorMessage))
	})

	t.Run("it cannot run twice", func(t *testing.T) {
		loader := New(NewHost(), fast)
		live, err := loader.Boot(context.Background())
		verifyNilErr(t, err)
		if !live {
			t.Fatal("expected loader to become live")
		}
		verifyErrorType(t, loader.Run(context.Background()), InvalidStateError(doneErrorMessage))
	})
}

func TestLoaderRelease(t *testing.T) {
	t.Run("a new run starts without callbacks from the previous one", func(t *testing.T) {
		r := &recorder{}
		host := NewHost()

		first := New(host, fast)
		_, err := first.Activate(context.Background())
		verifyNilErr(t, err)
		first.CallOnComplete(r.callback("stale"))
		first.Destroy()
		verifyState(t, first, StateDestroyed)
		if host.Live() != nil {
			t.Fatal("expected no live loader after release")
		}

		host.CallOnComplete(r.callback("fresh"))
		second := New(host, fast)
		live, err := second.Boot(context.Background())
		verifyNilErr(t, err)
		if !live {
			t.Fatal("expected second loader to become live")
		}
		verifyCountEq(t, host.Pending(), 0)
		verifyStringsEqual(t, []string{"fresh"}, r.actual())

		// The released loader never runs, and callbacks registered on it are routed to the live loader.
		verifyErrorType(t, first.Run(context.Background()), InvalidStateError(destroyedErrorMessage))
		first.CallOnComplete(r.callback("late"))
		verifyStringsEqual(t, []string{"fresh", "late"}, r.actual())
	})

	t.Run("callbacks registered on a completed loader after release go to the host", func(t *testing.T) {
		r := &recorder{}
		host := NewHost()
		loader := New(host, fast)
		_, err := loader.Boot(context.Background())
		verifyNilErr(t, err)
		verifyState(t, loader, StateCompleted)

		loader.Destroy()
		verifyState(t, loader, StateDestroyed)
		loader.CallOnComplete(r.callback("after-release"))
		verifyCountEq(t, len(r.actual()), 0)
		verifyCountEq(t, host.Pending(), 1)

		next := New(host, fast)
		_, err = next.Activate(context.Background())
		verifyNilErr(t, err)
		verifyStringsEqual(t, []string{"after-release"}, r.actual())
		verifyCountEq(t, host.Pending(), 0)
	})

	t.Run("a loader released while running never dispatches", func(t *testing.T) {
		r := &recorder{}
		host := NewHost()
		loader := New(host, fast)
		verifyNilErr(t, loader.Enqueue("release", Step(func(context.Context) error {
			loader.Destroy()
			return nil
		}), 1))
		_, err := loader.Activate(context.Background())
		verifyNilErr(t, err)
		loader.CallOnComplete(r.callback("never"))

		verifyNilErr(t, loader.Run(context.Background()))
		verifyState(t, loader, StateDestroyed)
		verifyCountEq(t, len(r.actual()), 0)
	})
}

func TestLoaderSceneIndex(t *testing.T) {
	cases := []struct {
		name     string
		index    int
		count    int
		expected int
		warned   bool
	}{
		{"valid index", 2, 4, 2, false},
		{"first scene", 0, 4, 0, false},
		{"index past the end", 4, 4, DefaultSceneIndex, true},
		{"negative index", -1, 4, DefaultSceneIndex, true},
		{"unknown scene count", 9, 0, 9, false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			loader := New(NewHost(), WithLogger(zap.New(core)), WithSceneIndex(tt.index), WithSceneCount(tt.count))
			_, err := loader.Activate(context.Background())
			verifyNilErr(t, err)

			verifyCountEq(t, loader.SceneIndex(), tt.expected)
			warnings := logs.FilterMessage("invalid scene index").All()
			if tt.warned != (len(warnings) == 1) {
				t.Fatalf("expected warning: %t, got %d warnings", tt.warned, len(warnings))
			}
			if tt.warned {
				expected := InvalidStageTargetError{Index: tt.index, Count: tt.count, Default: DefaultSceneIndex}
				if msg := warnings[0].ContextMap()["error"]; msg != expected.Error() {
					t.Fatalf("expected warning %q, got %v", expected.Error(), msg)
				}
			}
		})
	}

	t.Run("the last valid index becomes the fallback", func(t *testing.T) {
		host := NewHost()
		first := New(host, WithSceneIndex(3), WithSceneCount(5))
		_, err := first.Activate(context.Background())
		verifyNilErr(t, err)
		first.Destroy()

		second := New(host, WithSceneIndex(12), WithSceneCount(5))
		_, err = second.Activate(context.Background())
		verifyNilErr(t, err)
		verifyCountEq(t, second.SceneIndex(), 3)
		verifyCountEq(t, host.SceneIndex(), 3)
	})
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUninitialized: "uninitialized",
		StateActivating:    "activating",
		StateRunning:       "running",
		StateCompleted:     "completed",
		StateDestroyed:     "destroyed",
		State(42):          "State(42)",
	}
	for s, expected := range cases {
		if s.String() != expected {
			t.Fatalf("expected %q, got %q", expected, s.String())
		}
	}
}
