package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	for _, size := range []float64{0, -3} {
		s := NewProgressSampler(size)
		if s.bucketSize != 10 {
			t.Fatalf("bucketSize for %v = %v, want 10", size, s.bucketSize)
		}
		if s.lastBucket != -1 {
			t.Fatalf("lastBucket = %d, want -1", s.lastBucket)
		}
	}
}

func TestProgressSamplerNilAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(40, "recording") {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{10, false},
		{25, true},
		{49.9, false},
		{50, true},
		{130, true},
		{100, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, "recording"); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerPhaseChangeResetsBucket(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(90, "recording")
	if !s.ShouldLog(0, " finalizing ") {
		t.Fatal("phase change should log")
	}
	if s.lastPhase != "finalizing" {
		t.Fatalf("lastPhase = %q, want trimmed phase", s.lastPhase)
	}
	if !s.ShouldLog(10, "finalizing") {
		t.Fatal("bucket should restart after phase change")
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "probing") {
		t.Fatal("first phase should log")
	}
	if s.ShouldLog(-1, "probing") {
		t.Fatal("unknown percent in the same phase should not log")
	}
	s.Reset()
	if !s.ShouldLog(-1, "probing") {
		t.Fatal("should log again after reset")
	}
}
