package pipeline

import (
	"time"
)

// Event types.
const (
	EventStage    = "stage"
	EventChunk    = "chunk"
	EventComplete = "complete"
)

// Progress is chunk progress within a run.
type Progress struct {
	Total   int `json:"total"`
	Current int `json:"current"`
}

// Percentage is progress in 0..100.
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Event is one notification about a run.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source,omitempty"`
	State     State     `json:"state"`
	Progress  Progress  `json:"progress"`
	Percent   float64   `json:"percentage"`
	Chunk     *int      `json:"chunk_index,omitempty"`
	ChunkOK   bool      `json:"chunk_ok,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives run events. Observe is called synchronously from the
// run and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans events out to several observers.
type Observers []Observer

// Observe forwards e to every non-nil observer.
func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
