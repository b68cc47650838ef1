package index

import (
	"math"
	"testing"
	"time"
)

func TestBestMatch_ThresholdInclusive(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()
	exp := now.Add(time.Hour)

	// cos(60°) = 0.5 exactly representable enough for an inclusive check
	// when the threshold is the computed score itself.
	if _, err := ix.Insert("k", angled(math.Pi/3), "v", now, exp); err != nil {
		t.Fatal(err)
	}
	score := Dot(angled(0), angled(math.Pi/3))

	m, ok := ix.BestMatch(angled(0), score, now)
	if !ok {
		t.Fatal("score exactly equal to threshold must be a hit")
	}
	if m.Key != "k" || m.Score != score {
		t.Errorf("match = %+v, want key k score %v", m, score)
	}

	// Nudging the threshold above the score must turn it into a miss.
	if _, ok := ix.BestMatch(angled(0), score+1e-6, now); ok {
		t.Error("score below threshold must be a miss")
	}
}

func TestBestMatch_ReturnsHighestScore(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()
	exp := now.Add(time.Hour)

	for i, rad := range []float64{0.8, 0.1, 0.4} {
		key := string(rune('a' + i))
		if _, err := ix.Insert(key, angled(rad), key, now, exp); err != nil {
			t.Fatal(err)
		}
	}

	m, ok := ix.BestMatch(angled(0), 0.5, now)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Key != "b" { // angle 0.1 is closest to the query at angle 0
		t.Errorf("best match = %s, want b", m.Key)
	}
}

func TestBestMatch_TieBreakPrefersNewer(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()
	exp := now.Add(time.Hour)

	// Identical vectors produce bit-identical scores; the later created
	// entry must win.
	if _, err := ix.Insert("old", unit(2, 0), "old", now, exp); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Insert("new", unit(2, 0), "new", now.Add(time.Second), exp); err != nil {
		t.Fatal(err)
	}

	m, ok := ix.BestMatch(unit(2, 0), 0.9, now.Add(2*time.Second))
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Key != "new" {
		t.Errorf("tie-break picked %s, want new", m.Key)
	}
}

func TestBestMatch_SkipsExpired(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()

	if _, err := ix.Insert("stale", unit(2, 0), nil, now, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.BestMatch(unit(2, 0), 0.9, now.Add(2*time.Second)); ok {
		t.Error("expired entry must not match")
	}
}

func TestBestMatch_RefreshesRecency(t *testing.T) {
	ix := New(2, 2)
	now := time.Now()
	exp := now.Add(time.Hour)

	if _, err := ix.Insert("hot", unit(2, 0), nil, now, exp); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Insert("cold", unit(2, 1), nil, now.Add(time.Second), exp); err != nil {
		t.Fatal(err)
	}

	// A similarity hit on "hot" must update its recency so the later
	// capacity eviction picks "cold".
	if _, ok := ix.BestMatch(unit(2, 0), 0.9, now.Add(2*time.Second)); !ok {
		t.Fatal("expected similarity hit")
	}
	if _, err := ix.Insert("fresh", angled(0.7), nil, now.Add(3*time.Second), exp); err != nil {
		t.Fatal(err)
	}

	if _, ok := ix.GetExact("hot", now.Add(4*time.Second)); !ok {
		t.Error("recently matched entry was evicted")
	}
	if _, ok := ix.GetExact("cold", now.Add(4*time.Second)); ok {
		t.Error("LRU entry survived capacity eviction")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if !IsNormalized(v, 1e-6) {
		t.Errorf("|Normalize([3 4])| = %v, want 1", Norm(v))
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize([3 4]) = %v, want [0.6 0.8]", v)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Normalize(zero) = %v, want zero", zero)
	}
}
