package gameboot

// Progress is the boot sequence feedback medium.
// A Progress value is handed to every Observer each time a Unit in the sequence has completed. Done and Total count
// units across the whole sequence, Total includes units enqueued while the sequence is running.
type Progress struct {
	Stage int
	Unit  string
	Done  int
	Total int
}

// Percent returns the completed share of the sequence in the range [0, 1].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// Observer receives lifecycle callbacks from a Scheduler. All callbacks are made from the goroutine that called Run.
// A run ends with exactly one of SequenceCompleted or SequenceFailed.
type Observer interface {
	StageStarted(stage, units int)
	UnitCompleted(p Progress)
	StageCompleted(stage int)
	SequenceCompleted()
	SequenceFailed(err error)
}

// ObserverFunc allows using functions for Observer callbacks. Nil fields are ignored.
type ObserverFunc struct {
	OnStageStart    func(stage, units int)
	OnUnit          func(p Progress)
	OnStageComplete func(stage int)
	OnComplete      func()
	OnFail          func(err error)
}

// StageStarted implements Observer.
func (o ObserverFunc) StageStarted(stage, units int) {
	if o.OnStageStart != nil {
		o.OnStageStart(stage, units)
	}
}

// UnitCompleted implements Observer.
func (o ObserverFunc) UnitCompleted(p Progress) {
	if o.OnUnit != nil {
		o.OnUnit(p)
	}
}

// StageCompleted implements Observer.
func (o ObserverFunc) StageCompleted(stage int) {
	if o.OnStageComplete != nil {
		o.OnStageComplete(stage)
	}
}

// SequenceCompleted implements Observer.
func (o ObserverFunc) SequenceCompleted() {
	if o.OnComplete != nil {
		o.OnComplete()
	}
}

// SequenceFailed implements Observer.
func (o ObserverFunc) SequenceFailed(err error) {
	if o.OnFail != nil {
		o.OnFail(err)
	}
}

// Verify that ObserverFunc satisfies the Observer interface.
var _ Observer = ObserverFunc{}
