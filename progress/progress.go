package progress

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the allocator or
// processor. Fields are signed so that Running can move both ways.
type Delta struct {
	Claimed   int
	Running   int
	Completed int
	Failed    int
	// Lost counts executions whose completion found the task no longer RUNNING
	Lost int
}

// Counters is a read-only copy of the tracker state
type Counters struct {
	WorkerID  string    `json:"workerId"`
	StartedAt time.Time `json:"startedAt"`
	Claimed   int       `json:"claimed"`
	Running   int       `json:"running"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Lost      int       `json:"lost"`
}

// Progress keeps aggregated counters for one worker instance. It is safe for
// concurrent use.
type Progress struct {
	counters Counters
	mux      sync.Mutex
	onChange func(Counters)
}

// Update applies the supplied delta. A registered onChange callback is invoked
// with a copy of the updated counters outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mux.Lock()
	p.counters.Claimed += d.Claimed
	p.counters.Running += d.Running
	p.counters.Completed += d.Completed
	p.counters.Failed += d.Failed
	p.counters.Lost += d.Lost
	snapshot := p.counters
	cb := p.onChange
	p.mux.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.counters
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables the callback; only one callback can be active.
func (p *Progress) OnChange(cb func(Counters)) {
	if p == nil {
		return
	}
	p.mux.Lock()
	p.onChange = cb
	p.mux.Unlock()
}

// New creates a tracker for the supplied worker
func New(workerID string, startedAt time.Time) *Progress {
	return &Progress{counters: Counters{WorkerID: workerID, StartedAt: startedAt}}
}
