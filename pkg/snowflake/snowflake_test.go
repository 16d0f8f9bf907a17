package snowflake

import (
	"sync"
	"testing"
)

func TestNewNode_RejectsOutOfRange(t *testing.T) {
	if _, err := NewNode(-1); err == nil {
		t.Error("NewNode(-1) expected error, got nil")
	}
	if _, err := NewNode(1024); err == nil {
		t.Error("NewNode(1024) expected error, got nil")
	}
	if _, err := NewNode(1023); err != nil {
		t.Errorf("NewNode(1023) unexpected error: %v", err)
	}
}

func TestGenerate_Monotonic(t *testing.T) {
	node, err := NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	prev := node.Generate()
	for i := 0; i < 10000; i++ {
		id := node.Generate()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestGenerate_UniqueUnderConcurrency(t *testing.T) {
	node, err := NewNode(2)
	if err != nil {
		t.Fatal(err)
	}

	const goroutines = 8
	const perGoroutine = 2000

	var wg sync.WaitGroup
	results := make([][]int64, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, node.Generate())
			}
			results[g] = ids
		}(g)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, goroutines*perGoroutine)
	for _, ids := range results {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = struct{}{}
		}
	}
}
