package planner

import (
	"math"
	"testing"
)

func defaultConfig() Config {
	return Config{
		LeadTime:        0.25,
		LingerTime:      0.5,
		Crossfade:       0.5,
		ShortBuffer:     0.75,
		LongBuffer:      0.25,
		BufferThreshold: 3.0,
	}
}

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestBuildThreeSegments(t *testing.T) {
	plan := Build([]float64{2.0, 1.0, 4.0}, defaultConfig())

	wantExtended := []float64{3.5, 2.5, 5.0}
	for i, want := range wantExtended {
		if !almostEqual(plan.Extended[i], want) {
			t.Errorf("extended[%d] = %v, want %v", i, plan.Extended[i], want)
		}
	}

	if !almostEqual(plan.Total, 10.0) {
		t.Errorf("total = %v, want 10.0", plan.Total)
	}

	wantWindows := []Window{{0, 3.0}, {3.0, 5.0}, {5.0, 10.0}}
	for i, want := range wantWindows {
		got := plan.Windows[i]
		if !almostEqual(got.Start, want.Start) || !almostEqual(got.End, want.End) {
			t.Errorf("window[%d] = %+v, want %+v", i, got, want)
		}
	}
}

func TestBuildDurationIdentity(t *testing.T) {
	cases := [][]float64{
		{1.0},
		{2.0, 1.0, 4.0},
		{0.1, 0.2, 0.3, 0.4, 0.5},
		{10, 0, 3, 3, 7.25, 0.01},
	}

	cfg := defaultConfig()
	for _, durations := range cases {
		plan := Build(durations, cfg)

		sum := 0.0
		for _, e := range plan.Extended {
			sum += e
		}
		want := sum - float64(len(durations)-1)*cfg.Crossfade
		if !almostEqual(plan.Total, want) {
			t.Errorf("durations %v: total %v violates identity, want %v", durations, plan.Total, want)
		}
	}
}

func TestBuildWindowsContiguous(t *testing.T) {
	plan := Build([]float64{0.0, 5.0, 0.05, 2.0, 12.0}, defaultConfig())

	if !almostEqual(plan.Windows[0].Start, 0) {
		t.Errorf("first window starts at %v, want 0", plan.Windows[0].Start)
	}
	for i, w := range plan.Windows {
		if w.End <= w.Start {
			t.Errorf("window[%d] has non-positive length: %+v", i, w)
		}
		if i > 0 && !almostEqual(plan.Windows[i-1].End, w.Start) {
			t.Errorf("gap between window %d and %d: %v vs %v", i-1, i, plan.Windows[i-1].End, w.Start)
		}
	}
	if !almostEqual(plan.Windows[len(plan.Windows)-1].End, plan.Total) {
		t.Errorf("last window ends at %v, want total %v", plan.Windows[len(plan.Windows)-1].End, plan.Total)
	}
}

func TestBuildSingleSegmentNoCrossfade(t *testing.T) {
	plan := Build([]float64{2.0}, defaultConfig())

	if !almostEqual(plan.Extended[0], 3.5) {
		t.Errorf("extended[0] = %v, want 3.5", plan.Extended[0])
	}
	if !almostEqual(plan.Total, plan.Extended[0]) {
		t.Errorf("single segment total %v must equal extended %v", plan.Total, plan.Extended[0])
	}
	w := plan.Windows[0]
	if !almostEqual(w.Start, 0) || !almostEqual(w.End, plan.Total) {
		t.Errorf("single window %+v must cover [0, %v]", w, plan.Total)
	}
}

func TestBuildClampsDegenerateSegment(t *testing.T) {
	// With no pacing constants a zero-length narration would produce an
	// extended duration below the crossfade and a negative visible window.
	cfg := Config{Crossfade: 0.5}
	plan := Build([]float64{0.0, 4.0}, cfg)

	if plan.Extended[0] < cfg.Crossfade {
		t.Errorf("extended[0] = %v not clamped above crossfade %v", plan.Extended[0], cfg.Crossfade)
	}
	if plan.Windows[0].End <= plan.Windows[0].Start {
		t.Errorf("degenerate segment produced non-positive window %+v", plan.Windows[0])
	}
}

func TestBuildZeroConstantsIsRawTimeline(t *testing.T) {
	// Base-video subtitles use the plan with all constants at zero: the
	// windows must then be the plain cumulative narration durations.
	plan := Build([]float64{1.5, 2.5, 3.0}, Config{})

	wantWindows := []Window{{0, 1.5}, {1.5, 4.0}, {4.0, 7.0}}
	for i, want := range wantWindows {
		got := plan.Windows[i]
		if !almostEqual(got.Start, want.Start) || !almostEqual(got.End, want.End) {
			t.Errorf("window[%d] = %+v, want %+v", i, got, want)
		}
	}
	if !almostEqual(plan.Total, 7.0) {
		t.Errorf("total = %v, want 7.0", plan.Total)
	}
}

func TestBuildEmpty(t *testing.T) {
	plan := Build(nil, defaultConfig())
	if len(plan.Windows) != 0 || plan.Total != 0 {
		t.Errorf("empty input should produce empty plan, got %+v", plan)
	}
}

func TestResolveDurationsAllMeasured(t *testing.T) {
	segs := []Segment{
		{Text: "one two three", Duration: 1.2, Measured: true},
		{Text: "four five", Duration: 0.8, Measured: true},
	}
	got := ResolveDurations(segs, 2.0)
	if !almostEqual(got[0], 1.2) || !almostEqual(got[1], 0.8) {
		t.Errorf("measured durations must pass through, got %v", got)
	}
}

func TestResolveDurationsProportionalToWords(t *testing.T) {
	segs := []Segment{
		{Text: "a measured sentence here", Duration: 4.0, Measured: true},
		{Text: "one two three four five six", Measured: false}, // 6 words
		{Text: "one two three", Measured: false},               // 3 words
	}
	got := ResolveDurations(segs, 13.0)

	// Remaining 9s split 6:3 across the missing segments.
	if !almostEqual(got[1], 6.0) {
		t.Errorf("got[1] = %v, want 6.0", got[1])
	}
	if !almostEqual(got[2], 3.0) {
		t.Errorf("got[2] = %v, want 3.0", got[2])
	}
}

func TestResolveDurationsNeverNegative(t *testing.T) {
	// Measured clips exceed the whole-voiceover estimate; missing
	// segments must still get a non-negative share.
	segs := []Segment{
		{Text: "long measured", Duration: 12.0, Measured: true},
		{Text: "missing words here", Measured: false},
	}
	got := ResolveDurations(segs, 10.0)
	if got[1] < 0 {
		t.Errorf("fallback duration went negative: %v", got[1])
	}
}

func TestResolveDurationsNoVoiceTotal(t *testing.T) {
	segs := []Segment{
		{Text: "missing", Measured: false},
		{Text: "also missing", Measured: false},
	}
	got := ResolveDurations(segs, 0)
	for i, d := range got {
		if !almostEqual(d, fallbackSegmentSeconds) {
			t.Errorf("got[%d] = %v, want fixed fallback %v", i, d, fallbackSegmentSeconds)
		}
	}
}

func TestNarrationDelay(t *testing.T) {
	cfg := defaultConfig()
	if got := NarrationDelay(3.5, 2.0, cfg); !almostEqual(got, 1.25) {
		t.Errorf("delay = %v, want 1.25", got)
	}
	// Narration longer than the window must not produce negative padding.
	if got := NarrationDelay(1.0, 2.0, cfg); got != 0 {
		t.Errorf("overlong narration delay = %v, want 0", got)
	}
}
