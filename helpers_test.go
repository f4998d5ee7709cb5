package gameboot

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

// fast disables tick pacing so tests don't wait for frames.
var fast = WithTickRate(rate.Inf)

var errUnit = errors.New("unit has failed")

// ErrUnit (error unit) is a convenience Unit you can use when you want a unit that fails.
var ErrUnit Unit = UnitFunc(func(context.Context) (bool, error) {
	return false, errUnit
})

// PanicUnit (panic unit) is a convenience Unit you can use when you want a unit that must never be polled.
var PanicUnit Unit = UnitFunc(func(context.Context) (bool, error) {
	panic(errUnit.Error())
})

// recorder collects events from units and callbacks, in the order they happen.
type recorder struct {
	sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.Lock()
	defer r.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) actual() []string {
	r.Lock()
	defer r.Unlock()

	return append([]string(nil), r.events...)
}

// unit returns a Unit that records its name and is done right away.
func (r *recorder) unit(name string) Unit {
	return Step(func(context.Context) error {
		r.add(name)
		return nil
	})
}

// tracked returns a Unit that records "start:<name>" on its first poll and "done:<name>" once it has been polled for
// the given number of ticks.
func (r *recorder) tracked(name string, ticks int) Unit {
	polls := 0
	return UnitFunc(func(context.Context) (bool, error) {
		if polls == 0 {
			r.add("start:" + name)
		}
		polls++
		if polls < ticks {
			return false, nil
		}
		r.add("done:" + name)
		return true, nil
	})
}

// callback returns a Func that records its name.
func (r *recorder) callback(name string) Func {
	return func() {
		r.add(name)
	}
}

// indexOf returns the position of event in the recorded events, or -1.
func (r *recorder) indexOf(event string) int {
	for i, e := range r.actual() {
		if e == event {
			return i
		}
	}
	return -1
}

// count returns how many times event was recorded.
func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.actual() {
		if e == event {
			n++
		}
	}
	return n
}

func verifyNilErr(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func verifyErrorType(t *testing.T, actual, expected error) {
	t.Helper()

	if actual == nil {
		t.Fatalf("expected error of type %T(%s), got nil", expected, expected.Error())
	}
	if actual != expected {
		t.Fatalf("expected error of type %T(%s), got %T(%s)", expected, expected.Error(), actual, actual.Error())
	}
}

func verifyStringsEqual(t *testing.T, expected, actual []string) {
	t.Helper()

	if len(actual) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
	for i := range expected {
		if actual[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, actual)
		}
	}
}

func verifyBefore(t *testing.T, r *recorder, first, second string) {
	t.Helper()

	i, j := r.indexOf(first), r.indexOf(second)
	if i < 0 || j < 0 {
		t.Fatalf("expected both %q and %q to be recorded, got %v", first, second, r.actual())
	}
	if i > j {
		t.Fatalf("expected %q to happen before %q, got %v", first, second, r.actual())
	}
}

func verifyCountEq(t *testing.T, c int, expected int) {
	t.Helper()

	if c != expected {
		t.Fatalf("expected count to equal %d, got %d", expected, c)
	}
}

func verifyState(t *testing.T, l *Loader, expected State) {
	t.Helper()

	if actual := l.State(); actual != expected {
		t.Fatalf("expected state %s, got %s", expected, actual)
	}
}

func verifyPanicWithMsg(t *testing.T, expected string) {
	t.Helper()

	err := recover()
	if err == nil {
		t.Fatal("expected a panic")
	}
	actual, ok := err.(string)
	if !ok {
		t.Fatalf("expected to panic with string, got %v", reflect.TypeOf(err).String())
	}
	if actual != expected {
		t.Fatalf("expected panic message to equal %q, got %q", expected, actual)
	}
}
