package main

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGrinJobBuilder(t *testing.T) {
	job, err := grinJobBuilder(testTemplatePayload(1000, 5000, 3), 77, testNow)
	if err != nil {
		t.Fatalf("grinJobBuilder: %v", err)
	}
	if job.ID() != 77 || job.Height() != 1000 || job.NetworkDifficulty() != 5000 || job.NodeJobID() != 10000 {
		t.Fatalf("unexpected job: id=%d height=%d diff=%d node=%d", job.ID(), job.Height(), job.NetworkDifficulty(), job.NodeJobID())
	}
	if job.PrePow().SecondaryScaling() != 1856 {
		t.Fatalf("secondary scaling = %d", job.PrePow().SecondaryScaling())
	}
	if !job.CreatedAt().Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("created at = %s", job.CreatedAt())
	}
	if job.PrePowHex() != testPrePowHex(1000, 1856, 3) {
		t.Fatalf("pre-pow hex not preserved")
	}
}

func TestNewGrinJobRejects(t *testing.T) {
	good := rawJobTemplate{Height: 10, Difficulty: 1, PrePow: testPrePowHex(10, 0, 0)}

	tpl := good
	tpl.Difficulty = 0
	if _, err := newGrinJob(tpl, 1, testNow); !errors.Is(err, errTemplateDifficulty) {
		t.Fatalf("zero difficulty: got %v", err)
	}

	tpl = good
	tpl.Height = 11
	if _, err := newGrinJob(tpl, 1, testNow); !errors.Is(err, errTemplateHeight) {
		t.Fatalf("height mismatch: got %v", err)
	}

	tpl = good
	tpl.PrePow = tpl.PrePow[:20]
	if _, err := newGrinJob(tpl, 1, testNow); !errors.Is(err, errPrePowLength) {
		t.Fatalf("short pre-pow: got %v", err)
	}

	tpl = good
	tpl.PrePow = "zz" + tpl.PrePow[2:]
	if _, err := newGrinJob(tpl, 1, testNow); !errors.Is(err, errPrePowHex) {
		t.Fatalf("bad hex: got %v", err)
	}

	tpl = good
	tpl.PrePow = "  " + strings.ToUpper(tpl.PrePow) + "\n"
	job, err := newGrinJob(tpl, 1, testNow)
	if err != nil {
		t.Fatalf("padded pre-pow: %v", err)
	}
	if job.CreatedAt() != testNow {
		t.Fatalf("missing created_at_ts should fall back to now")
	}

	if _, err := grinJobBuilder([]byte("{not json"), 1, testNow); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestJobIDGeneratorMonotonic(t *testing.T) {
	clock := &testClock{t: testNow}
	g := newJobIDGenerator()
	g.now = clock.Now

	a := g.Next()
	b := g.Next()
	if a != uint64(testNow.Unix())<<32 || b != a+1 {
		t.Fatalf("ids = %x %x", a, b)
	}
	clock.Advance(-time.Hour)
	if c := g.Next(); c <= b {
		t.Fatalf("id went backwards with the clock: %x after %x", c, b)
	}
	clock.Advance(2 * time.Hour)
	if d := g.Next(); d != uint64(clock.Now().Unix())<<32 {
		t.Fatalf("id = %x, want fresh second", d)
	}
}
