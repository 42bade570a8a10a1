// Package planner computes the timing plan that keeps narration, burned-in
// subtitles, and visual segments aligned. It is pure computation: measured
// narration durations go in, per-segment display windows come out.
package planner

import (
	"math"
	"strings"
)

// minWindowEpsilon is the slack added when clamping a degenerate segment so
// its window keeps a positive visible length after the crossfade borrow.
const minWindowEpsilon = 0.01

// fallbackSegmentSeconds is used when neither per-sentence clips nor the
// whole voiceover clip could be measured.
const fallbackSegmentSeconds = 5.0

// Config holds the pacing constants. They are deliberately configuration,
// not invariants: the duration identity in Build holds for any values.
type Config struct {
	// LeadTime is the silence before narration starts in each segment.
	LeadTime float64
	// LingerTime keeps the visual on screen after narration ends.
	LingerTime float64
	// Crossfade is the overlap borrowed from both neighbors at every
	// interior transition.
	Crossfade float64
	// ShortBuffer is the extra dwell for segments whose narration is
	// shorter than BufferThreshold; LongBuffer applies otherwise. Short
	// utterances need more visual dwell relative to their own length.
	ShortBuffer     float64
	LongBuffer      float64
	BufferThreshold float64
}

// Buffer returns the adaptive dwell buffer for a narration duration.
func (c Config) Buffer(d float64) float64 {
	if d < c.BufferThreshold {
		return c.ShortBuffer
	}
	return c.LongBuffer
}

// Window is one segment's slice of the display timeline.
type Window struct {
	Start float64
	End   float64
}

// Plan is the global timing plan for a job's segments.
//
// Windows tile [0, Total] with no gaps or overlaps. Extended holds the
// underlying clip length for each segment, which exceeds its window by the
// crossfade overlap shared with the next segment. NarrationOffset is where
// the measured narration clip starts inside each window.
type Plan struct {
	Windows         []Window
	Extended        []float64
	NarrationOffset float64
	Crossfade       float64
	Total           float64
}

// Build computes the timing plan for an ordered list of measured narration
// durations.
//
// Each segment's extended duration is lead + narration + adaptive buffer +
// linger, clamped to stay longer than the crossfade. Interior transitions
// borrow the crossfade from both neighbors, so the total display duration
// is sum(extended) - (n-1)*crossfade and window starts accumulate
// extended[i] - crossfade. The first and last segments keep their outward
// edges at 0 and Total.
func Build(durations []float64, cfg Config) Plan {
	n := len(durations)
	plan := Plan{
		Extended:        make([]float64, n),
		Windows:         make([]Window, n),
		NarrationOffset: cfg.LeadTime,
		Crossfade:       cfg.Crossfade,
	}
	if n == 0 {
		return plan
	}

	total := 0.0
	for i, d := range durations {
		if d < 0 {
			d = 0
		}
		ext := cfg.LeadTime + d + cfg.Buffer(d) + cfg.LingerTime
		if ext < cfg.Crossfade+minWindowEpsilon {
			ext = cfg.Crossfade + minWindowEpsilon
		}
		plan.Extended[i] = ext
		total += ext
	}
	total -= float64(n-1) * cfg.Crossfade

	start := 0.0
	for i := 0; i < n; i++ {
		width := plan.Extended[i]
		if i < n-1 {
			width -= cfg.Crossfade
		}
		plan.Windows[i] = Window{Start: start, End: start + width}
		start += width
	}
	// Pin the last edge to the computed total; the accumulation above is
	// algebraically equal but float summation can drift by an ulp.
	plan.Windows[n-1].End = total
	plan.Total = total

	return plan
}

// Segment is one narration unit going into duration resolution. Duration
// is only meaningful when Measured is true.
type Segment struct {
	Text     string
	Duration float64
	Measured bool
}

// ResolveDurations fills in durations for segments whose narration clip
// could not be measured. The remainder of the whole-voiceover duration
// (voiceTotal) after subtracting measured clips is distributed across the
// missing segments proportionally to their word counts; the remainder is
// never allowed to go negative. When voiceTotal itself is unavailable
// (<= 0), missing segments fall back to a fixed length.
func ResolveDurations(segments []Segment, voiceTotal float64) []float64 {
	durations := make([]float64, len(segments))

	known := 0.0
	var missing []int
	for i, seg := range segments {
		if seg.Measured {
			durations[i] = seg.Duration
			known += seg.Duration
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return durations
	}

	if voiceTotal <= 0 {
		for _, i := range missing {
			durations[i] = fallbackSegmentSeconds
		}
		return durations
	}

	remaining := math.Max(voiceTotal-known, 0)
	if remaining <= 0 {
		// The measured clips already consume the whole voiceover; spread
		// the average so no window collapses to zero.
		average := voiceTotal / float64(len(segments))
		for _, i := range missing {
			durations[i] = average
		}
		return durations
	}

	totalWeight := 0
	weights := make([]int, len(missing))
	for k, i := range missing {
		weights[k] = wordWeight(segments[i].Text)
		totalWeight += weights[k]
	}
	for k, i := range missing {
		durations[i] = remaining * float64(weights[k]) / float64(totalWeight)
	}
	return durations
}

// NarrationDelay returns the padding needed after a segment's narration to
// fill its extended duration: everything past lead + narration.
func NarrationDelay(extended, narration float64, cfg Config) float64 {
	pad := extended - cfg.LeadTime - narration
	if pad < 0 {
		return 0
	}
	return pad
}

func wordWeight(text string) int {
	n := len(strings.Fields(text))
	if n < 1 {
		return 1
	}
	return n
}
