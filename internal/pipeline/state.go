package pipeline

// State is a generation run's current phase. Transitions are linear:
// Idle, AcquiringCredential, Calling, Parsing, Materializing, then
// Done or Failed.
type State string

const (
	StateIdle                State = "idle"
	StateAcquiringCredential State = "acquiring_credential"
	StateCalling             State = "calling"
	StateParsing             State = "parsing"
	StateMaterializing       State = "materializing"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// StateObserver receives phase transitions as a run progresses.
type StateObserver func(State)

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(s)
	}
}

// State returns the run's current phase.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
