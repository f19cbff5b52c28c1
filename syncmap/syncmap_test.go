package syncmap

import (
	"sync"
	"testing"
	"testing/quick"
)

func TestMapConcurrent(t *testing.T) {
	m := New[int, int]()
	const goroutines = 100
	const operations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := range goroutines {
		go func(base int) {
			defer wg.Done()
			for j := range operations {
				key := base + j
				if _, loaded := m.LoadOrStore(key, key*2); loaded {
					t.Errorf("key %d already present", key)
				}
				if v, ok := m.Load(key); !ok || v != key*2 {
					t.Errorf("concurrent store failed: key=%d, want %d, got %v", key, key*2, v)
				}
			}
		}(i * operations)
	}
	wg.Wait()
	n := 0
	for range m.All() {
		n++
	}
	if n != goroutines*operations {
		t.Errorf("wrong number of elements: want %d, got %d", goroutines*operations, n)
	}
}

func TestLoadOrStore(t *testing.T) {
	m := New[string, *int]()
	a, b := new(int), new(int)
	v, loaded := m.LoadOrStore("bocchi", a)
	if loaded || v != a {
		t.Errorf("first LoadOrStore: want (a, false), got (%p, %t)", v, loaded)
	}
	v, loaded = m.LoadOrStore("bocchi", b)
	if !loaded || v != a {
		t.Errorf("second LoadOrStore: want (a, true), got (%p, %t)", v, loaded)
	}
}

func TestLoadOrStoreRace(t *testing.T) {
	m := New[string, int]()
	const goroutines = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	wg.Add(goroutines)
	for i := range goroutines {
		go func() {
			defer wg.Done()
			if _, loaded := m.LoadOrStore("ryou", i); !loaded {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("wrong number of stores won: want 1, got %d", winners)
	}
}

func TestMapAll(t *testing.T) {
	m := New[string, int]()
	count := 0
	for range m.All() {
		count++
	}
	if count != 0 {
		t.Errorf("want 0 elements in empty map, got %d", count)
	}

	want := map[string]int{
		"bocchi": 1,
		"ryou":   2,
		"nijika": 3,
	}
	for k, v := range want {
		m.LoadOrStore(k, v)
	}
	got := make(map[string]int)
	for k, v := range m.All() {
		got[k] = v
	}
	if len(got) != len(want) {
		t.Errorf("want %d elements, got %d", len(want), len(got))
	}
	for k, v := range want {
		if g, ok := got[k]; !ok || g != v {
			t.Errorf("missing or wrong value for %q: want %d, got %d", k, v, g)
		}
	}

	// The body can use the map.
	for k, v := range m.All() {
		if u, ok := m.Load(k); !ok || u != v {
			t.Errorf("wrong value loaded in loop for %q: want %d, got %d", k, v, u)
		}
	}

	count = 0
	for range m.All() {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("want early termination after 2 elements, got %d", count)
	}
}

func TestMapAllQuick(t *testing.T) {
	f := func(entries map[string]int) bool {
		m := New[string, int]()
		for k, v := range entries {
			m.LoadOrStore(k, v)
		}
		seen := make(map[string]int)
		for k, v := range m.All() {
			seen[k] = v
		}
		if len(seen) != len(entries) {
			return false
		}
		for k, v := range entries {
			if seen[k] != v {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}
