package pipelinecache

import (
	"testing"

	"github.com/neshume/island/shadercache"
)

func moduleWithDigest(b byte) *shadercache.Module {
	m := &shadercache.Module{}
	m.Digest[0] = b
	return m
}

func TestCacheKeyIsDeterministic(t *testing.T) {
	c := &Cache{}
	d := Description{
		Stages:        []*shadercache.Module{moduleWithDigest(1), moduleWithDigest(2)},
		SetLayouts:    []*SetLayout{{Hash: 42}},
		FixedFunction: FixedFunctionState{Hash: 7},
		RenderPassSig: 99,
	}

	k1 := c.key(d)
	k2 := c.key(d)
	if k1 != k2 {
		t.Fatalf("key() not deterministic: %d != %d", k1, k2)
	}
}

func TestCacheKeyDiffersOnShaderDigest(t *testing.T) {
	c := &Cache{}
	base := Description{
		Stages:        []*shadercache.Module{moduleWithDigest(1)},
		FixedFunction: FixedFunctionState{Hash: 7},
	}
	changed := base
	changed.Stages = []*shadercache.Module{moduleWithDigest(2)}

	if c.key(base) == c.key(changed) {
		t.Fatal("key() did not change when a shader digest changed")
	}
}

func TestPipelineStillFreshTracksGeneration(t *testing.T) {
	m := &shadercache.Module{}
	fresh := &Pipeline{stageGenerations: []uint64{m.Generation()}}
	stale := &Pipeline{stageGenerations: []uint64{m.Generation() + 1}}

	if !fresh.StillFresh([]*shadercache.Module{m}) {
		t.Fatal("expected StillFresh when the snapshot matches the module's current generation")
	}
	if stale.StillFresh([]*shadercache.Module{m}) {
		t.Fatal("expected StillFresh to report stale when the snapshot predates the module's generation")
	}
}

func TestPipelineStillFreshRejectsStageCountMismatch(t *testing.T) {
	p := &Pipeline{stageGenerations: []uint64{0, 0}}
	if p.StillFresh([]*shadercache.Module{{}}) {
		t.Fatal("expected StillFresh to reject a mismatched stage count")
	}
}

func TestNewCacheStartsWithZeroBuilds(t *testing.T) {
	c := &Cache{byKey: make(map[uint64]*Pipeline)}
	if c.Builds() != 0 {
		t.Fatalf("Builds() = %d, want 0", c.Builds())
	}
}
