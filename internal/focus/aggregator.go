package focus

import (
	"sort"
	"time"

	"github.com/your-org/mindfocus/internal/face"
)

// BucketWidth is the width of one persisted metric bucket.
const BucketWidth = 30 * time.Second

// Bucket is the average of every sample that fell in one time bucket.
type Bucket struct {
	Sec          int // bucket start, seconds since session start
	FocusScore   float64
	EAR          float64
	MAR          float64
	HeadPitchDeg float64
	Samples      int
}

// Averages are whole-session means. A nil field means no sample was taken.
type Averages struct {
	FocusScore   *float64
	EAR          *float64
	MAR          *float64
	HeadPitchDeg *float64
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

type bucketAcc struct {
	focus, ear, mar, head mean
}

func (b *bucketAcc) add(score float64, m face.Metrics) {
	b.focus.add(score)
	b.ear.add(m.EAR)
	b.mar.add(m.MAR)
	b.head.add(m.HeadPitchDeg)
}

// Aggregator accumulates per-frame samples of an active session into
// whole-session means and fixed-width buckets awaiting a flush.
type Aggregator struct {
	width   int
	session bucketAcc
	pending map[int]*bucketAcc
	drained int // buckets starting before this were already emitted
}

func NewAggregator(width time.Duration) *Aggregator {
	w := int(width / time.Second)
	if w <= 0 {
		w = int(BucketWidth / time.Second)
	}
	return &Aggregator{width: w, pending: make(map[int]*bucketAcc)}
}

// AddSession records one processed frame in the whole-session means.
func (a *Aggregator) AddSession(score float64, m face.Metrics) {
	a.session.add(score, m)
}

// AddBucket records one processed frame, taken elapsed after session start,
// in its metric bucket. Samples for an already drained bucket are dropped.
func (a *Aggregator) AddBucket(elapsed time.Duration, score float64, m face.Metrics) {
	key := a.bucketOf(elapsed)
	if key < a.drained {
		return
	}
	acc, ok := a.pending[key]
	if !ok {
		acc = &bucketAcc{}
		a.pending[key] = acc
	}
	acc.add(score, m)
}

func (a *Aggregator) bucketOf(elapsed time.Duration) int {
	sec := int(elapsed / time.Second)
	if sec < 0 {
		sec = 0
	}
	return sec / a.width * a.width
}

// DrainCompleted removes and returns the buckets that can no longer receive
// samples at elapsed, oldest first. A bucket is emitted once only.
func (a *Aggregator) DrainCompleted(elapsed time.Duration) []Bucket {
	current := a.bucketOf(elapsed)
	if current > a.drained {
		a.drained = current
	}
	return a.drain(func(sec int) bool { return sec < current })
}

// DrainAll removes and returns every pending bucket, oldest first.
func (a *Aggregator) DrainAll() []Bucket {
	return a.drain(func(int) bool { return true })
}

func (a *Aggregator) drain(keep func(sec int) bool) []Bucket {
	var out []Bucket
	for sec, acc := range a.pending {
		if !keep(sec) || acc.focus.n == 0 {
			continue
		}
		out = append(out, Bucket{
			Sec:          sec,
			FocusScore:   *acc.focus.value(),
			EAR:          *acc.ear.value(),
			MAR:          *acc.mar.value(),
			HeadPitchDeg: *acc.head.value(),
			Samples:      acc.focus.n,
		})
		delete(a.pending, sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sec < out[j].Sec })
	return out
}

// Averages returns the whole-session means so far.
func (a *Aggregator) Averages() Averages {
	return Averages{
		FocusScore:   a.session.focus.value(),
		EAR:          a.session.ear.value(),
		MAR:          a.session.mar.value(),
		HeadPitchDeg: a.session.head.value(),
	}
}

// Reset discards every sample.
func (a *Aggregator) Reset() {
	a.session = bucketAcc{}
	a.pending = make(map[int]*bucketAcc)
}
