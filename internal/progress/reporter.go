// Package progress renders a pipeline.ProgressEvent stream as CLI-visible
// indexing progress: one line per event, carrying smoothed throughput, ETA,
// and a throughput sparkline, styled with the same lime green palette the
// rest of the CLI's richer output uses.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kestrelsearch/kestrel/internal/pipeline"
)

// Reporter adapts a pipeline.ProgressEvent callback to plain text output.
// Handle is safe to pass directly as an index.Options.ProgressSink.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	styles  Styles
	tracker *Tracker
}

// NewReporter creates a Reporter writing to out. noColor disables the lime
// green palette, for piped or CI output.
func NewReporter(out io.Writer, noColor bool) *Reporter {
	return &Reporter{
		out:     out,
		styles:  GetStyles(noColor),
		tracker: NewTracker(),
	}
}

// Handle renders one progress line for event. It matches the
// func(pipeline.ProgressEvent) shape index.Options.ProgressSink expects.
func (r *Reporter) Handle(event pipeline.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Update(event.ChunksSubmitted, event.ChunksCompleted, event.ChunksFailed)
	_, avgSpeed, _ := r.tracker.Speed()
	eta := r.tracker.ETA(event.ChunksSubmitted, event.ChunksCompleted, event.ChunksFailed)
	done := event.ChunksCompleted + event.ChunksFailed

	line := fmt.Sprintf("embedding %d/%d chunks", done, event.ChunksSubmitted)
	if avgSpeed > 0 {
		line += fmt.Sprintf(" (%.1f/s)", avgSpeed)
	}
	if eta > 0 {
		line += fmt.Sprintf(" eta %s", eta.Round(time.Second))
	}
	if event.BatchSize > 0 {
		line += fmt.Sprintf(" batch=%d", event.BatchSize)
	}
	if event.Retries > 0 {
		line += fmt.Sprintf(" retries=%d", event.Retries)
	}

	style := r.styles.Progress
	if event.ChunksFailed > 0 {
		style = r.styles.Warning
		line += fmt.Sprintf(" (%d failed)", event.ChunksFailed)
	}
	_, _ = fmt.Fprintln(r.out, style.Render(line))
}

// Summary returns a final throughput line with a sparkline of the run's
// chunks/sec history, suitable for printing once the run completes.
func (r *Reporter) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, avg, peak := r.tracker.Speed()
	spark := r.styles.Sparkline.Render(r.tracker.Sparkline(40))
	speed := r.styles.Speed.Render(fmt.Sprintf("avg %.1f/s, peak %.1f/s", avg, peak))
	return fmt.Sprintf("%s %s", spark, speed)
}
