package minhits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsBadConfig(t *testing.T) {
	assert.Error(t, Config{K: 0}.Validate())
	assert.Error(t, Config{K: 16}.Validate())
	assert.Error(t, Config{K: 10, MidMaskLen: 9}.Validate())
	assert.Error(t, Config{K: 10, MidMaskLen: 0, KStep: 0}.Validate())
	assert.NoError(t, Config{K: 10, MidMaskLen: 0, KStep: 1}.Validate())
}

// Scenario (F) from spec.md §8: K=10, midMaskLen=0, maxSubs=2, maxClip=0,
// minIdentity=0.9, minProb=1.0 (deterministic shortcut), validKmers=40:
// minHits = max(1, 40 - max(2,10)*2 - 0) = 20.
func TestDeterministicScenarioF(t *testing.T) {
	cfg := Config{
		K:           10,
		MidMaskLen:  0,
		MaxSubs:     2,
		MinIdentity: 0.9,
		MinProb:     1.0,
		MaxClip:     0,
		KStep:       1,
	}
	require.NoError(t, cfg.Validate())
	c := New(cfg)
	assert.Equal(t, 20, c.MinHits(40))
}

func TestMinProbZeroReturnsValidKmers(t *testing.T) {
	cfg := Config{K: 8, MaxSubs: 1, MinIdentity: 0.9, MinProb: 0, MaxClip: 0, KStep: 1}
	c := New(cfg)
	assert.Equal(t, 30, c.MinHits(30))
}

func TestMinProbNegativeReturnsOne(t *testing.T) {
	cfg := Config{K: 8, MaxSubs: 1, MinIdentity: 0.9, MinProb: -1, MaxClip: 0, KStep: 1}
	c := New(cfg)
	assert.Equal(t, 1, c.MinHits(30))
}

func TestZeroValidKmersReturnsZero(t *testing.T) {
	cfg := Config{K: 8, MaxSubs: 1, MinIdentity: 0.9, MinProb: 0.95, MaxClip: 0, KStep: 1}
	c := New(cfg)
	assert.Equal(t, 0, c.MinHits(0))
}

// MinHits monotonicity (invariant 5 in spec.md §8): for v1<=v2,
// minHits(v1) <= minHits(v2) + (v2-v1).
func TestMonotonicity(t *testing.T) {
	cfg := Config{
		K:           8,
		MidMaskLen:  0,
		MaxSubs:     1,
		MinIdentity: 0.85,
		MinProb:     0.99,
		MaxClip:     0.1,
		KStep:       1,
		Iterations:  20000,
	}
	c := New(cfg)
	prev := -1
	for v := 5; v <= 60; v += 5 {
		h := c.MinHits(v)
		if prev >= 0 {
			assert.LessOrEqual(t, prev, h+5)
		}
		prev = h
	}
}

func TestMinHitsMemoizedConcurrently(t *testing.T) {
	cfg := Config{
		K:           9,
		MidMaskLen:  0,
		MaxSubs:     1,
		MinIdentity: 0.9,
		MinProb:     0.9,
		MaxClip:     0,
		KStep:       1,
		Iterations:  5000,
	}
	c := New(cfg)
	done := make(chan int, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- c.MinHits(25) }()
	}
	first := <-done
	for i := 1; i < 8; i++ {
		assert.Equal(t, first, <-done)
	}
}

func TestInfeasibleKReturnsZero(t *testing.T) {
	// Huge maxSubs relative to validKmers should trip the upper-bound
	// pre-check and return 0 ("this K cannot satisfy the probability
	// target for this query length").
	cfg := Config{
		K:           8,
		MidMaskLen:  0,
		MaxSubs:     50,
		MinIdentity: 0.0,
		MinProb:     0.95,
		MaxClip:     0,
		KStep:       1,
	}
	c := New(cfg)
	assert.Equal(t, 0, c.MinHits(10))
}
