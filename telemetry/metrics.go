package telemetry

import (
	"sort"
	"sync"

	"github.com/feedbackqueue/mlfq/mlfq"
)

// digestCentroid is one t-digest bucket: a running mean over count samples.
type digestCentroid struct {
	mean  float64
	count int64
}

// WaitingTimeDigest tracks the distribution of WaitingTicks across every
// report cycle using a t-digest, so a long-running simulation can answer
// "what's the p95 wait for a task at this priority mix" without retaining
// every sample. The original qpool job-latency percentile tracker used the
// same centroid-merge scheme for job execution latency; here the quantity
// observed is scheduler waiting time rather than job duration.
type WaitingTimeDigest struct {
	mu           sync.Mutex
	centroids    []digestCentroid
	compression  float64
	totalWeight  int64
	maxCentroids int
}

// NewWaitingTimeDigest creates an empty digest with a default compression
// factor (centroids merge once the bucket count exceeds it).
func NewWaitingTimeDigest() *WaitingTimeDigest {
	return &WaitingTimeDigest{
		compression:  100,
		maxCentroids: 100,
		centroids:    make([]digestCentroid, 0, 100),
	}
}

// Observe is a mlfq.Supervisor report hook: it folds every snapshot's
// WaitingTicks into the digest.
func (d *WaitingTimeDigest) Observe(snaps []mlfq.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range snaps {
		d.insert(float64(s.WaitingTicks))
	}
}

func (d *WaitingTimeDigest) insert(value float64) {
	d.totalWeight++

	if len(d.centroids) == 0 {
		d.centroids = append(d.centroids, digestCentroid{mean: value, count: 1})
		return
	}

	idx := sort.Search(len(d.centroids), func(i int) bool {
		return d.centroids[i].mean >= value
	})

	q := d.rankOf(value)
	maxWeight := int64(4 * d.compression * minf(q, 1-q))

	merged := false
	if idx < len(d.centroids) && d.centroids[idx].count < maxWeight {
		c := &d.centroids[idx]
		c.mean = (c.mean*float64(c.count) + value) / float64(c.count+1)
		c.count++
		merged = true
	} else if idx > 0 && d.centroids[idx-1].count < maxWeight {
		c := &d.centroids[idx-1]
		c.mean = (c.mean*float64(c.count) + value) / float64(c.count+1)
		c.count++
		merged = true
	}

	if !merged {
		nc := digestCentroid{mean: value, count: 1}
		d.centroids = append(d.centroids, digestCentroid{})
		copy(d.centroids[idx+1:], d.centroids[idx:])
		d.centroids[idx] = nc
	}

	if len(d.centroids) > d.maxCentroids {
		d.compress()
	}
}

func (d *WaitingTimeDigest) rankOf(value float64) float64 {
	if d.totalWeight == 0 {
		return 0
	}
	rank := 0.0
	for _, c := range d.centroids {
		if c.mean < value {
			rank += float64(c.count)
		}
	}
	return rank / float64(d.totalWeight)
}

func (d *WaitingTimeDigest) compress() {
	if len(d.centroids) <= 1 {
		return
	}
	sort.Slice(d.centroids, func(i, j int) bool {
		return d.centroids[i].mean < d.centroids[j].mean
	})

	merged := make([]digestCentroid, 0, d.maxCentroids)
	current := d.centroids[0]
	for i := 1; i < len(d.centroids); i++ {
		if current.count+d.centroids[i].count <= int64(d.compression) {
			total := current.count + d.centroids[i].count
			current.mean = (current.mean*float64(current.count) +
				d.centroids[i].mean*float64(d.centroids[i].count)) / float64(total)
			current.count = total
		} else {
			merged = append(merged, current)
			current = d.centroids[i]
		}
	}
	d.centroids = append(merged, current)
}

// Percentile estimates the p-th percentile (0 < p < 1) of observed waiting
// ticks via linear interpolation between centroids. Returns 0 if nothing
// has been observed yet.
func (d *WaitingTimeDigest) Percentile(p float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.centroids) == 0 {
		return 0
	}

	target := p * float64(d.totalWeight)
	cumulative := 0.0
	for i, c := range d.centroids {
		cumulative += float64(c.count)
		if cumulative >= target {
			if i > 0 {
				prev := d.centroids[i-1]
				prevCumulative := cumulative - float64(c.count)
				t := (target - prevCumulative) / float64(c.count)
				return prev.mean + t*(c.mean-prev.mean)
			}
			return c.mean
		}
	}
	return d.centroids[len(d.centroids)-1].mean
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
