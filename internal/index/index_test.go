package index

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

// angled returns a unit 2-vector at the given angle from the x axis.
func angled(rad float64) []float32 {
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	ix := New(4, 0)
	_, err := ix.Insert("k", []float32{1, 0}, nil, time.Now(), time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("expected error for wrong dimension")
	}
	if ix.Len() != 0 {
		t.Errorf("failed insert must not grow the index, len=%d", ix.Len())
	}
}

func TestInsert_RejectsNonUnitVector(t *testing.T) {
	ix := New(2, 0)
	_, err := ix.Insert("k", []float32{3, 4}, nil, time.Now(), time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("expected error for non-normalized vector")
	}
}

func TestInsert_OverwriteRefreshesTTL(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()

	if _, err := ix.Insert("k", unit(2, 0), "v1", now, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	later := now.Add(30 * time.Second)
	if _, err := ix.Insert("k", unit(2, 0), "v2", later, later.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	if ix.Len() != 1 {
		t.Fatalf("duplicate key must overwrite in place, len=%d", ix.Len())
	}
	v, ok := ix.GetExact("k", now.Add(2*time.Second)) // past the original expiry
	if !ok {
		t.Fatal("expected hit after TTL refresh")
	}
	if v != "v2" {
		t.Errorf("got %v, want v2", v)
	}
}

func TestRemove_SwapKeepsArraysDense(t *testing.T) {
	ix := New(3, 0)
	now := time.Now()
	exp := now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := ix.Insert(fmt.Sprintf("k%d", i), unit(3, i), i, now, exp); err != nil {
			t.Fatal(err)
		}
	}

	// Removing the middle slot moves the last entry into its place.
	if !ix.Remove("k1") {
		t.Fatal("expected k1 to be removed")
	}
	if ix.Len() != 2 {
		t.Fatalf("len = %d, want 2", ix.Len())
	}

	// The moved entry must remain reachable by key and by similarity.
	if v, ok := ix.GetExact("k2", now); !ok || v != 2 {
		t.Errorf("moved entry lookup = (%v, %v), want (2, true)", v, ok)
	}
	if m, ok := ix.BestMatch(unit(3, 2), 0.99, now); !ok || m.Key != "k2" {
		t.Errorf("moved entry scan = (%+v, %v), want k2 hit", m, ok)
	}
	if _, ok := ix.GetExact("k1", now); ok {
		t.Error("removed entry still reachable")
	}
}

func TestDenseInvariant_AfterManyOps(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()
	exp := now.Add(time.Hour)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := ix.Insert(key, angled(float64(i)/50), i, now, exp); err != nil {
			t.Fatal(err)
		}
		if i%3 == 0 {
			ix.Remove(fmt.Sprintf("k%d", i/2))
		}
	}

	snap := ix.Snapshot()
	if len(snap) != ix.Len() {
		t.Fatalf("snapshot len %d != Len %d", len(snap), ix.Len())
	}
	seen := make(map[string]bool, len(snap))
	for _, e := range snap {
		if seen[e.Key] {
			t.Fatalf("duplicate live key %q", e.Key)
		}
		seen[e.Key] = true
		if len(e.Vec) != 2 {
			t.Fatalf("entry %q has vector of len %d", e.Key, len(e.Vec))
		}
		if v, ok := ix.GetExact(e.Key, now); !ok || v != e.Value {
			t.Fatalf("entry %q not reachable by key", e.Key)
		}
	}
}

func TestCapacityEviction_TrueLRU(t *testing.T) {
	ix := New(2, 3)
	now := time.Now()
	exp := now.Add(time.Hour)
	var evicted []string
	ix.OnEvict = func(key string, reason EvictReason) {
		if reason == EvictCapacity {
			evicted = append(evicted, key)
		}
	}

	mustInsert := func(key string, at time.Time) {
		t.Helper()
		if _, err := ix.Insert(key, angled(float64(len(key))), key, at, exp); err != nil {
			t.Fatal(err)
		}
	}
	mustInsert("a", now)
	mustInsert("bb", now.Add(time.Second))
	mustInsert("ccc", now.Add(2*time.Second))

	// Refresh "a": despite being the oldest insert it is now the most
	// recently used, so "bb" must be the victim.
	if _, ok := ix.GetExact("a", now.Add(3*time.Second)); !ok {
		t.Fatal("expected hit on a")
	}
	mustInsert("dddd", now.Add(4*time.Second))

	if len(evicted) != 1 || evicted[0] != "bb" {
		t.Fatalf("evicted %v, want [bb]", evicted)
	}
	if _, ok := ix.GetExact("a", now.Add(5*time.Second)); !ok {
		t.Error("recently used entry was evicted")
	}
	if ix.Len() != 3 {
		t.Errorf("len = %d, want 3", ix.Len())
	}
}

func TestSweepExpired(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()
	for i := 0; i < 4; i++ {
		ttl := time.Hour
		if i%2 == 0 {
			ttl = time.Second
		}
		if _, err := ix.Insert(fmt.Sprintf("k%d", i), angled(float64(i)), i, now, now.Add(ttl)); err != nil {
			t.Fatal(err)
		}
	}

	removed := ix.SweepExpired(now.Add(2 * time.Second))
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	if ix.Len() != 2 {
		t.Fatalf("len = %d, want 2", ix.Len())
	}
	for _, key := range []string{"k1", "k3"} {
		if _, ok := ix.GetExact(key, now.Add(2*time.Second)); !ok {
			t.Errorf("unexpired entry %s was swept", key)
		}
	}
}

func TestGetExact_LazyExpiry(t *testing.T) {
	ix := New(2, 0)
	now := time.Now()
	if _, err := ix.Insert("k", unit(2, 0), "v", now, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	if _, ok := ix.GetExact("k", now.Add(500*time.Millisecond)); !ok {
		t.Error("expected hit inside TTL window")
	}
	if _, ok := ix.GetExact("k", now.Add(1500*time.Millisecond)); ok {
		t.Error("expected miss past TTL")
	}
	if ix.Len() != 0 {
		t.Errorf("expired entry not removed, len=%d", ix.Len())
	}
}
