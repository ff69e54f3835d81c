package buffer

import (
	"fmt"
	"sync"
	"testing"
)

func TestRing_AppendAndSnapshot(t *testing.T) {
	ring, err := NewRing[int](5)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := ring.Append(i); err != nil {
			t.Fatalf("Unexpected append error: %v", err)
		}
	}

	if ring.Len() != 3 {
		t.Errorf("Expected length 3, got %d", ring.Len())
	}
	if ring.Capacity() != 5 {
		t.Errorf("Expected capacity 5, got %d", ring.Capacity())
	}

	got := ring.Snapshot()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Expected snapshot %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot[%d]: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestRing_OverwritesOldestWhenFull(t *testing.T) {
	ring, err := NewRing[string](3)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		if err := ring.Append(s); err != nil {
			t.Fatalf("Unexpected append error: %v", err)
		}
	}

	if ring.Len() != 3 {
		t.Errorf("Expected length capped at 3, got %d", ring.Len())
	}

	got := ring.Snapshot()
	want := []string{"c", "d", "e"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot[%d]: expected %q, got %q", i, want[i], got[i])
		}
	}

	if ring.Stats().Overwrites() != 2 {
		t.Errorf("Expected 2 overwrites, got %d", ring.Stats().Overwrites())
	}
}

func TestRing_RecentNewestFirst(t *testing.T) {
	ring, err := NewRing[int](4)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	for i := 1; i <= 6; i++ {
		_ = ring.Append(i)
	}

	// Retained: 3, 4, 5, 6. Recent(2) should be newest first.
	got := ring.Recent(2)
	if len(got) != 2 || got[0] != 6 || got[1] != 5 {
		t.Errorf("Expected [6 5], got %v", got)
	}

	// Asking for more than retained returns everything.
	all := ring.Recent(10)
	if len(all) != 4 || all[0] != 6 || all[3] != 3 {
		t.Errorf("Expected [6 5 4 3], got %v", all)
	}

	if ring.Recent(0) != nil {
		t.Error("Recent(0) should return nil")
	}
}

func TestRing_Last(t *testing.T) {
	ring, err := NewRing[int](3)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	if _, ok := ring.Last(); ok {
		t.Error("Last on empty ring should report not found")
	}

	_ = ring.Append(10)
	_ = ring.Append(20)

	last, ok := ring.Last()
	if !ok || last != 20 {
		t.Errorf("Expected last=20, got %d (ok=%v)", last, ok)
	}
}

func TestRing_Drain(t *testing.T) {
	ring, err := NewRing[int](3)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	for i := 1; i <= 5; i++ {
		_ = ring.Append(i)
	}

	drained := ring.Drain()
	want := []int{3, 4, 5}
	if len(drained) != len(want) {
		t.Fatalf("Expected drain %v, got %v", want, drained)
	}
	for i := range want {
		if drained[i] != want[i] {
			t.Errorf("Drain[%d]: expected %d, got %d", i, want[i], drained[i])
		}
	}

	if ring.Len() != 0 {
		t.Errorf("Expected empty ring after drain, got length %d", ring.Len())
	}
	if ring.Drain() != nil {
		t.Error("Draining an empty ring should return nil")
	}

	// Ring stays usable after a drain.
	_ = ring.Append(99)
	if got := ring.Snapshot(); len(got) != 1 || got[0] != 99 {
		t.Errorf("Expected [99] after post-drain append, got %v", got)
	}

	if ring.Stats().Drained() != 3 {
		t.Errorf("Expected 3 drained items, got %d", ring.Stats().Drained())
	}
}

func TestRing_DropCallbackOnOverwrite(t *testing.T) {
	var mu sync.Mutex
	var dropped []int

	ring, err := NewRing[int](2, WithDropCallback[int](func(item int) {
		mu.Lock()
		dropped = append(dropped, item)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	for i := 1; i <= 4; i++ {
		_ = ring.Append(i)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 2 || dropped[0] != 1 || dropped[1] != 2 {
		t.Errorf("Expected dropped [1 2], got %v", dropped)
	}
}

func TestRing_ClearInvokesCallback(t *testing.T) {
	var mu sync.Mutex
	var dropped []int

	ring, err := NewRing[int](5, WithDropCallback[int](func(item int) {
		mu.Lock()
		dropped = append(dropped, item)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	_ = ring.Append(1)
	_ = ring.Append(2)
	ring.Clear()

	if ring.Len() != 0 {
		t.Errorf("Expected empty ring after clear, got length %d", ring.Len())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 2 || dropped[0] != 1 || dropped[1] != 2 {
		t.Errorf("Expected cleared items [1 2], got %v", dropped)
	}
}

func TestRing_ClosedRejectsAppends(t *testing.T) {
	ring, err := NewRing[int](3)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	_ = ring.Append(1)
	if err := ring.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}

	if err := ring.Append(2); err == nil {
		t.Error("Expected error appending to closed ring")
	}

	// Reads still work after close.
	if got := ring.Snapshot(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected snapshot [1] after close, got %v", got)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	ring, err := NewRing[int](0)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	if ring.Capacity() != 1 {
		t.Errorf("Expected capacity clamped to 1, got %d", ring.Capacity())
	}

	_ = ring.Append(1)
	_ = ring.Append(2)
	if last, _ := ring.Last(); last != 2 {
		t.Errorf("Expected last=2, got %d", last)
	}
}

func TestRing_ConcurrentAppends(t *testing.T) {
	ring, err := NewRing[int](100)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = ring.Append(base*50 + i)
			}
		}(g)
	}
	wg.Wait()

	if ring.Len() != 100 {
		t.Errorf("Expected full ring of 100, got %d", ring.Len())
	}
	if ring.Stats().Appends() != 500 {
		t.Errorf("Expected 500 appends, got %d", ring.Stats().Appends())
	}
	if ring.Stats().Overwrites() != 400 {
		t.Errorf("Expected 400 overwrites, got %d", ring.Stats().Overwrites())
	}
}

func TestRing_StatisticsSummary(t *testing.T) {
	ring, err := NewRing[int](2)
	if err != nil {
		t.Fatalf("Unexpected error creating ring: %v", err)
	}

	_ = ring.Append(1)
	_ = ring.Append(2)
	_ = ring.Append(3)
	ring.Snapshot()

	summary := ring.Stats().Summary()
	if summary.Appends != 3 {
		t.Errorf("Expected 3 appends in summary, got %d", summary.Appends)
	}
	if summary.Overwrites != 1 {
		t.Errorf("Expected 1 overwrite in summary, got %d", summary.Overwrites)
	}
	if summary.CurrentSize != 2 {
		t.Errorf("Expected current size 2, got %d", summary.CurrentSize)
	}
	if summary.OverwriteRate <= 0 {
		t.Errorf("Expected positive overwrite rate, got %f", summary.OverwriteRate)
	}

	ring.Stats().Reset()
	if ring.Stats().Appends() != 0 {
		t.Error("Expected appends reset to zero")
	}
}

func BenchmarkRing_Append(b *testing.B) {
	ring, _ := NewRing[int](100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ring.Append(i)
	}
}

func BenchmarkRing_Snapshot(b *testing.B) {
	ring, _ := NewRing[int](100)
	for i := 0; i < 100; i++ {
		_ = ring.Append(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ring.Snapshot()
	}
}

func ExampleRing() {
	ring, _ := NewRing[string](3)
	for _, site := range []string{"one", "two", "three", "four"} {
		_ = ring.Append(site)
	}

	fmt.Println(ring.Recent(2))
	// Output: [four three]
}
