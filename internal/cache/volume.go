package cache

import (
	"math"
	"sync"
	"time"
)

const volumeWindow = 24 * time.Hour

type volumeSample struct {
	at     time.Time
	amount float64
}

// VolumeCache tracks a per-mint rolling 24h volume series, grounded in
// original_source's volume_cache.rs: a deque pruned on every insert, with
// a simple arithmetic mean (resolving the spec's open question in favor
// of arithmetic over weighted averaging).
type VolumeCache struct {
	mu      sync.Mutex
	samples map[string][]volumeSample
}

func NewVolumeCache() *VolumeCache {
	return &VolumeCache{samples: make(map[string][]volumeSample)}
}

// RecordVolume appends a new sample for mint and prunes anything older
// than the 24h window.
func (c *VolumeCache) RecordVolume(mint string, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	series := append(c.samples[mint], volumeSample{at: now, amount: amount})
	c.samples[mint] = pruneVolume(series, now)
}

func pruneVolume(series []volumeSample, now time.Time) []volumeSample {
	cutoff := now.Add(-volumeWindow)
	kept := series[:0]
	for _, s := range series {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// Average24h returns the arithmetic mean volume over the trailing 24h
// window, or (0, false) if no samples remain.
func (c *VolumeCache) Average24h(mint string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	series := pruneVolume(c.samples[mint], time.Now())
	c.samples[mint] = series
	if len(series) == 0 {
		return 0, false
	}

	var sum float64
	for _, s := range series {
		sum += s.amount
	}
	return sum / float64(len(series)), true
}

// HasVolumeDrop reports whether the most recent sample has fallen at
// least thresholdPercent below the trailing 24h average.
func (c *VolumeCache) HasVolumeDrop(mint string, thresholdPercent float64) bool {
	c.mu.Lock()
	series := pruneVolume(c.samples[mint], time.Now())
	c.samples[mint] = series
	c.mu.Unlock()

	if len(series) == 0 {
		return false
	}
	avg, ok := c.Average24h(mint)
	if !ok || avg == 0 {
		return false
	}
	current := series[len(series)-1].amount
	dropPercent := ((avg - current) / avg) * 100.0
	return dropPercent >= thresholdPercent
}

// StdDevReturns returns the population standard deviation of percentage
// returns between consecutive samples in the trailing window. Requires
// at least two returns (three samples, each return's earlier sample
// nonzero); returns (0, false) otherwise.
func (c *VolumeCache) StdDevReturns(mint string) (float64, bool) {
	c.mu.Lock()
	series := append([]volumeSample(nil), pruneVolume(c.samples[mint], time.Now())...)
	c.mu.Unlock()

	if len(series) < 2 {
		return 0, false
	}

	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].amount
		if prev == 0 {
			continue
		}
		returns = append(returns, (series[i].amount-prev)/prev*100.0)
	}
	if len(returns) < 2 {
		return 0, false
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance), true
}
