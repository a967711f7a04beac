package display

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/teranos/tabula/pipeline"
)

var stageText = map[pipeline.State]string{
	pipeline.Loading:     "Loading data...",
	pipeline.Validating:  "Checking spec and chunk sizes...",
	pipeline.Aggregating: "Aggregating chunk results...",
}

// Progress renders run events on the terminal: a spinner for the setup
// stages, a progress bar over chunks and a warning per failed chunk.
type Progress struct {
	mu      sync.Mutex
	spinner *pterm.SpinnerPrinter
	bar     *pterm.ProgressbarPrinter
}

// NewProgress returns a terminal observer.
func NewProgress() *Progress {
	return &Progress{}
}

// Observe implements pipeline.Observer.
func (p *Progress) Observe(e pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case pipeline.EventStage:
		p.stage(e.State)
	case pipeline.EventChunk:
		p.chunk(e)
	case pipeline.EventComplete:
		p.stopBar()
		p.stopSpinner()
	}
}

func (p *Progress) stage(s pipeline.State) {
	text, ok := stageText[s]
	if !ok {
		p.stopSpinner()
		return
	}
	p.stopBar()
	if p.spinner != nil {
		p.spinner.UpdateText(text)
		return
	}
	p.spinner, _ = pterm.DefaultSpinner.Start(text)
}

func (p *Progress) chunk(e pipeline.Event) {
	p.stopSpinner()
	if p.bar == nil {
		p.bar, _ = pterm.DefaultProgressbar.
			WithTotal(e.Progress.Total).
			WithTitle("Processing chunks").
			Start()
	}
	if !e.ChunkOK && e.Chunk != nil {
		pterm.Warning.Printfln("Chunk %d failed after %d attempts: %s", *e.Chunk+1, e.Attempts, e.Reason)
	}
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *Progress) stopSpinner() {
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
}

func (p *Progress) stopBar() {
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
	}
}
