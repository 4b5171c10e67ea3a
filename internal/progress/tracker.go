package progress

import (
	"sync"
	"time"
)

// Tracker derives smoothed throughput and ETA from a stream of chunk counts.
// Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	startTime     time.Time
	lastSpeedCalc time.Time
	lastDone      int

	currentSpeed float64
	avgSpeed     float64
	peakSpeed    float64
	speedSamples int
	sparkline    *Sparkline

	lastETA time.Duration
}

// NewTracker creates a Tracker starting its elapsed-time clock now.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{startTime: now, lastSpeedCalc: now, sparkline: NewSparkline(60)}
}

// etaSmoothingFactor controls how much weight a new ETA estimate gets against
// the previous one: 0.3 means 30% new value, 70% previous, damping the swings
// that batch-to-batch latency variance would otherwise produce.
const etaSmoothingFactor = 0.3

// speedSampleInterval bounds how often the rolling speed average updates, to
// avoid noise from back-to-back batch completions landing in the same tick.
const speedSampleInterval = 500 * time.Millisecond

// Update records a new (submitted, completed, failed) snapshot and refreshes
// the smoothed throughput once at least speedSampleInterval has elapsed since
// the previous sample.
func (t *Tracker) Update(submitted, completed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := completed + failed
	now := time.Now()
	elapsed := now.Sub(t.lastSpeedCalc)
	if elapsed < speedSampleInterval {
		return
	}

	delta := done - t.lastDone
	if delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		t.currentSpeed = speed

		t.speedSamples++
		if t.speedSamples == 1 {
			t.avgSpeed = speed
		} else {
			t.avgSpeed = 0.2*speed + 0.8*t.avgSpeed
		}
		if speed > t.peakSpeed {
			t.peakSpeed = speed
		}
		t.sparkline.Add(speed)
	}

	t.lastDone = done
	t.lastSpeedCalc = now
}

// ETA estimates remaining time to reach submitted given the current done
// count, exponentially smoothed against the previous estimate.
func (t *Tracker) ETA(submitted, completed, failed int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := completed + failed
	if done == 0 || submitted == 0 {
		return 0
	}

	progress := float64(done) / float64(submitted)
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	elapsed := time.Since(t.startTime)
	totalEstimate := time.Duration(float64(elapsed) / progress)
	rawRemaining := totalEstimate - elapsed
	if rawRemaining < 0 {
		return 0
	}

	if t.lastETA == 0 {
		t.lastETA = rawRemaining
		return rawRemaining
	}

	smoothed := time.Duration(
		etaSmoothingFactor*float64(rawRemaining) + (1-etaSmoothingFactor)*float64(t.lastETA),
	)
	t.lastETA = smoothed
	return smoothed
}

// Speed returns the current, rolling-average, and peak throughput in
// chunks/sec.
func (t *Tracker) Speed() (current, avg, peak float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSpeed, t.avgSpeed, t.peakSpeed
}

// Sparkline renders the throughput history at width, or at the tracker's
// native width when width <= 0.
func (t *Tracker) Sparkline(width int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if width <= 0 {
		return t.sparkline.Render()
	}
	return t.sparkline.RenderWithWidth(width)
}

// Elapsed returns time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.startTime)
}
