package focus

import (
	"math"
	"time"
)

const (
	eyesClosedRatio = 0.7
	eyesClosedHold  = 3 * time.Second

	blinkRatio     = 0.8
	blinkWindow    = 60 * time.Second
	minBlinksInWin = 5

	headDeviationDeg  = 25.0
	headDeviationHold = 10 * time.Second

	yawnRefMultiplier = 3.0
	yawnRefOffset     = 0.2
	yawnFloor         = 0.6
	yawnResetRatio    = 0.8
	yawnWindow        = 5 * time.Minute
	minYawnsInWin     = 3

	lowFocusThreshold = 60.0
	lowFocusHold      = 5 * time.Minute

	faceLostHold = 2 * time.Second

	vibrationInterval = 5 * time.Second
	alertDisplayTime  = 5 * time.Second
)

// sustained tracks how long a condition has held without interruption.
type sustained struct {
	hold  time.Duration
	since time.Time
}

// observe records that the condition holds at now and reports whether it
// has held for at least the required duration.
func (s *sustained) observe(now time.Time) bool {
	if s.since.IsZero() {
		s.since = now
	}
	return now.Sub(s.since) >= s.hold
}

func (s *sustained) reset() { s.since = time.Time{} }

// blinkRate counts blink onsets: the smoothed EAR falling below a fraction
// of the reference.
type blinkRate struct {
	inProgress bool
	edges      []time.Time
	last       time.Time // zero until the clock is armed
}

// observe feeds one EAR reading and reports whether it started a blink.
func (b *blinkRate) observe(ear, earRef float64, now time.Time) bool {
	if ear < earRef*blinkRatio {
		if !b.inProgress {
			b.inProgress = true
			b.edges = append(b.edges, now)
			b.last = now
			return true
		}
		return false
	}
	b.inProgress = false
	return false
}

// prune drops onsets older than the trailing window.
func (b *blinkRate) prune(now time.Time) {
	i := 0
	for i < len(b.edges) && now.Sub(b.edges[i]) > blinkWindow {
		i++
	}
	b.edges = b.edges[i:]
}

// low reports a low blink rate: either no blink at all for a full window,
// or a full window observed with too few onsets in it.
func (b *blinkRate) low(now time.Time) bool {
	noBlink := !b.last.IsZero() && now.Sub(b.last) >= blinkWindow
	fewBlinks := len(b.edges) > 0 &&
		now.Sub(b.edges[0]) >= blinkWindow &&
		len(b.edges) < minBlinksInWin
	return noBlink || fewBlinks
}

func (b *blinkRate) clearEdges() {
	b.inProgress = false
	b.edges = b.edges[:0]
}

func (b *blinkRate) reset() {
	b.clearEdges()
	b.last = time.Time{}
}

// yawnCounter counts yawn onsets with hysteresis: an onset is counted when
// MAR crosses the threshold and re-armed only once MAR drops below 80% of it.
type yawnCounter struct {
	inProgress bool
	onsets     []time.Time
}

func yawnThreshold(marRef float64) float64 {
	return math.Max(math.Max(marRef*yawnRefMultiplier, marRef+yawnRefOffset), yawnFloor)
}

func (y *yawnCounter) observe(mar, marRef float64, now time.Time) {
	th := yawnThreshold(marRef)
	if mar >= th {
		if !y.inProgress {
			y.inProgress = true
			y.onsets = append(y.onsets, now)
		}
	} else if mar <= th*yawnResetRatio {
		y.inProgress = false
	}
}

func (y *yawnCounter) prune(now time.Time) {
	i := 0
	for i < len(y.onsets) && now.Sub(y.onsets[i]) > yawnWindow {
		i++
	}
	y.onsets = y.onsets[i:]
}

func (y *yawnCounter) repeated() bool { return len(y.onsets) >= minYawnsInWin }

func (y *yawnCounter) reset() {
	y.inProgress = false
	y.onsets = y.onsets[:0]
}
