package gameboot

import (
	"context"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// state represents a Scheduler's state. It's either:
// 1. waiting to be run (stateIdle),
// 2. running its stages (stateRunning),
// 3. done with every stage (stateComplete),
// 4. stopped by a failing unit or a cancelled context (stateFailed).
type state uint8

const (
	stateIdle state = iota
	stateRunning
	stateComplete
	stateFailed
)

// queued is a Unit waiting in the Scheduler, along with the stage it belongs to.
type queued struct {
	name  string
	stage int
	unit  Unit
}

// Scheduler groups units by stage and runs one stage to completion before moving on to the next.
// Enqueue is safe to call from any goroutine, including from within a Unit.
type Scheduler struct {
	sync.Mutex // Protects everything below.

	name      string
	state     state
	queue     []*queued // Units not yet done, in enqueue order.
	floor     int       // Stages below floor are closed.
	current   int       // Stage currently running.
	done      int       // Units completed so far.
	limiter   *rate.Limiter
	observers []Observer
	logger    *zap.Logger
	complete  func() // Fired once, after the last stage.
}

// NewScheduler returns a new and empty Scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	cfg := newSettings(opts)
	return newScheduler(cfg)
}

func newScheduler(cfg settings) *Scheduler {
	return &Scheduler{
		name:      cfg.name,
		floor:     math.MinInt,
		limiter:   rate.NewLimiter(cfg.tickRate, 1),
		observers: cfg.observers,
		logger:    cfg.logger,
	}
}

// Enqueue adds unit to the given stage. Lower stages run first. Enqueue never runs the unit itself.
// Enqueue returns a StageClosedError if the stage has already run, or if the whole sequence has completed.
func (s *Scheduler) Enqueue(name string, unit Unit, stage int) error {
	if unit == nil {
		return NilUnitError(name)
	}

	s.Lock()
	defer s.Unlock()

	switch {
	case s.state == stateFailed:
		return InvalidStateError(failedErrorMessage)
	case s.state == stateComplete, stage < s.floor:
		return StageClosedError(stage)
	}

	s.queue = append(s.queue, &queued{name: name, stage: stage, unit: unit})
	return nil
}

// Len returns the number of units that have not completed yet.
func (s *Scheduler) Len() int {
	s.Lock()
	defer s.Unlock()

	return len(s.queue)
}

// Stage returns the stage currently running. The result is only meaningful while Run is in progress.
func (s *Scheduler) Stage() int {
	s.Lock()
	defer s.Unlock()

	return s.current
}

// Completed reports whether every stage has run to completion.
func (s *Scheduler) Completed() bool {
	s.Lock()
	defer s.Unlock()

	return s.state == stateComplete
}

// String returns a representation of the pending units ordered by stage.
// Unit names are wrapped in parentheses per stage, and separated by a colon when they share a stage, and a right-arrow
// when one stage runs before another. Units within a stage are listed in enqueue order.
// Ex: "(save : ui) > (mods)"
func (s *Scheduler) String() string {
	s.Lock()
	defer s.Unlock()

	stages := make(map[int][]string)
	order := make([]int, 0)
	for _, q := range s.queue {
		if _, ok := stages[q.stage]; !ok {
			order = append(order, q.stage)
		}
		stages[q.stage] = append(stages[q.stage], q.name)
	}
	sort.Ints(order)

	groups := make([]string, len(order))
	for i, stage := range order {
		groups[i] = "(" + strings.Join(stages[stage], " : ") + ")"
	}
	return strings.Join(groups, " > ")
}

// Run executes the enqueued units, stage by stage, on the calling goroutine. It blocks until every stage has completed,
// a unit fails, or ctx is cancelled. The completion event fires exactly once, after the last stage; it never fires if
// Run returns an error, in which case observers are told the sequence failed.
// Run returns an InvalidStateError if the Scheduler has already been run.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	s.Lock()
	if s.state != stateIdle {
		msg := inProgressErrorMessage
		switch s.state {
		case stateComplete:
			msg = doneErrorMessage
		case stateFailed:
			msg = failedErrorMessage
		}
		s.Unlock()
		return InvalidStateError(msg)
	}
	s.state = stateRunning
	s.Unlock()

	defer func() {
		if err != nil {
			s.Lock()
			s.state = stateFailed
			s.Unlock()
			s.logger.Error("boot sequence stopped", zap.String("sequence", s.name), zap.Error(err))
			for _, obs := range s.observers {
				obs.SequenceFailed(err)
			}
		}
	}()

	// Iterate over stage groups in ascending order. There is no guarantee regarding the order in which units of the
	// same stage finish, only that all of them finish before the next stage starts.
	for {
		stage, ok := s.nextStage()
		if !ok {
			break
		}
		if err = s.runStage(ctx, stage); err != nil {
			return err
		}
	}

	s.Lock()
	s.state = stateComplete
	s.queue = nil
	s.Unlock()

	s.logger.Info("boot sequence complete", zap.String("sequence", s.name))
	for _, obs := range s.observers {
		obs.SequenceCompleted()
	}
	if s.complete != nil {
		s.complete()
	}
	return nil
}

// nextStage closes every stage below the lowest populated one and returns it. It returns false when there is nothing
// left to run, in which case every stage is considered closed.
func (s *Scheduler) nextStage() (int, bool) {
	s.Lock()
	defer s.Unlock()

	if len(s.queue) == 0 {
		return 0, false
	}

	lowest := s.queue[0].stage
	for _, q := range s.queue[1:] {
		if q.stage < lowest {
			lowest = q.stage
		}
	}
	s.floor = lowest
	s.current = lowest
	return lowest, true
}

// stageUnits returns the pending units of the given stage, in enqueue order.
func (s *Scheduler) stageUnits(stage int) []*queued {
	s.Lock()
	defer s.Unlock()

	units := make([]*queued, 0, len(s.queue))
	for _, q := range s.queue {
		if q.stage == stage {
			units = append(units, q)
		}
	}
	return units
}

// retire removes a completed unit from the queue and returns the progress made so far.
func (s *Scheduler) retire(done *queued) Progress {
	s.Lock()
	defer s.Unlock()

	for i, q := range s.queue {
		if q == done {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.done++
	return Progress{Stage: done.stage, Unit: done.name, Done: s.done, Total: s.done + len(s.queue)}
}

// closeStage closes the stage if none of its units are left. Checking and closing happen under the same lock as
// Enqueue, so a unit is either accepted into the stage before it closes, or rejected.
func (s *Scheduler) closeStage(stage int) bool {
	s.Lock()
	defer s.Unlock()

	for _, q := range s.queue {
		if q.stage == stage {
			return false
		}
	}
	s.floor = stage + 1
	return true
}

// runStage polls every unit of a single stage once per tick until all of them are done.
func (s *Scheduler) runStage(ctx context.Context, stage int) error {
	units := s.stageUnits(stage)
	s.logger.Debug("stage started", zap.String("sequence", s.name), zap.Int("stage", stage), zap.Int("units", len(units)))
	for _, obs := range s.observers {
		obs.StageStarted(stage, len(units))
	}

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		progressed := false
		for _, q := range units {
			done, err := q.unit.Poll(ctx)
			if err != nil {
				return UnitError{Unit: q.name, Stage: stage, Err: err}
			}
			if !done {
				continue
			}
			progressed = true
			p := s.retire(q)
			s.logger.Debug("unit completed", zap.String("sequence", s.name), zap.Int("stage", stage),
				zap.String("unit", q.name))
			for _, obs := range s.observers {
				obs.UnitCompleted(p)
			}
		}

		if s.closeStage(stage) {
			break
		}
		if !progressed {
			runtime.Gosched()
		}
		units = s.stageUnits(stage)
	}

	s.logger.Debug("stage completed", zap.String("sequence", s.name), zap.Int("stage", stage))
	for _, obs := range s.observers {
		obs.StageCompleted(stage)
	}
	return nil
}
