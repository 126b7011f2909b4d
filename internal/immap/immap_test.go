package immap

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
)

func checkBalanced[K comparable, V any](t *testing.T, n *node[K, V]) int {
	t.Helper()
	if n == nil {
		return 0
	}
	lh := checkBalanced(t, n.left)
	rh := checkBalanced(t, n.right)
	if d := lh - rh; d > 1 || d < -1 {
		t.Fatalf("node %v is unbalanced: left %d, right %d", n.key, lh, rh)
	}
	if n.left != nil && n.left.hash >= n.hash {
		t.Fatalf("left hash %d is not less than %d", n.left.hash, n.hash)
	}
	if n.right != nil && n.right.hash <= n.hash {
		t.Fatalf("right hash %d is not greater than %d", n.right.hash, n.hash)
	}
	h := 1 + max(lh, rh)
	if n.height != h {
		t.Fatalf("node %v has height %d, want %d", n.key, n.height, h)
	}
	return h
}

func TestMap_AddOrUpdateAndFind(t *testing.T) {
	m := Empty[int, string]()
	for i := 0; i < 1000; i++ {
		m = m.AddOrUpdate(i, fmt.Sprint(i))
		checkBalanced(t, m.root)
	}

	for i := 0; i < 1000; i++ {
		if got := m.GetValueOrDefault(i); got != fmt.Sprint(i) {
			t.Fatalf("key %d: got %q", i, got)
		}
	}

	if got := m.GetValueOrDefault(5000); got != "" {
		t.Errorf("expected zero value for missing key, got %q", got)
	}

	if m.Len() != 1000 {
		t.Errorf("expected 1000 entries, got %d", m.Len())
	}

	// log2(1000) ~ 10, an AVL tree stays under 1.45 * log2(n)
	if m.Height() > 15 {
		t.Errorf("tree too high: %d", m.Height())
	}
}

func TestMap_Immutability(t *testing.T) {
	m1 := Empty[string, int]().AddOrUpdate("a", 1)
	m2 := m1.AddOrUpdate("a", 2).AddOrUpdate("b", 3)

	if v := m1.GetValueOrDefault("a"); v != 1 {
		t.Errorf("old snapshot changed: a=%d", v)
	}
	if m1.Contains("b") {
		t.Error("old snapshot sees a newer key")
	}
	if v := m2.GetValueOrDefault("a"); v != 2 {
		t.Errorf("expected a=2, got %d", v)
	}

	m3 := m2.Remove("a")
	if !m2.Contains("a") {
		t.Error("remove changed the previous snapshot")
	}
	if m3.Contains("a") {
		t.Error("removed key still present")
	}
}

func TestMap_UpdateThroughZeroValue(t *testing.T) {
	m := Empty[string, *int]()
	one, two := 1, 2

	m = m.Update("x", &one)
	if m.Contains("x") {
		t.Fatal("update must not add a missing key")
	}

	m = m.AddOrUpdate("x", &one)
	m = m.Update("x", nil)
	v, ok := m.TryFind("x")
	if !ok || v != nil {
		t.Fatalf("expected present nil value, got %v, %v", v, ok)
	}

	m = m.Update("x", &two)
	if got := m.GetValueOrDefault("x"); got == nil || *got != 2 {
		t.Fatalf("expected 2 after update, got %v", got)
	}
	if m.Len() != 1 {
		t.Errorf("update appended instead of replacing: len=%d", m.Len())
	}
}

func TestMap_AddOrUpdateWith(t *testing.T) {
	m := Empty[string, []int]().AddOrUpdate("k", []int{1})
	m = m.AddOrUpdateWith("k", []int{2}, func(old, v []int) []int {
		return append(append([]int{}, old...), v...)
	})

	got := m.GetValueOrDefault("k")
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected merge result %v", got)
	}
}

func TestMap_EnumerateOrderedByHash(t *testing.T) {
	m := Empty[int, int]()
	for i := 0; i < 200; i++ {
		m = m.AddOrUpdate(i, i)
	}

	var prev uint64
	first := true
	seen := 0
	for k := range m.All() {
		h := Hash(k)
		if !first && h < prev {
			t.Fatalf("enumeration out of hash order at key %d", k)
		}
		prev, first = h, false
		seen++
	}
	if seen != 200 {
		t.Errorf("enumerated %d entries, want 200", seen)
	}
}

func TestMap_HashConflicts(t *testing.T) {
	// Force equal hashes through the node API to exercise the conflict list.
	var root *node[string, int]
	root = root.addOrUpdate(7, "a", 1, nil)
	root = root.addOrUpdate(7, "b", 2, nil)
	root = root.addOrUpdate(7, "c", 3, nil)
	root = root.addOrUpdate(3, "z", 26, nil)

	var keys []string
	root.walk(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	if fmt.Sprint(keys) != "[z a b c]" {
		t.Fatalf("unexpected order %v", keys)
	}

	root = root.addOrUpdate(7, "b", 20, nil)
	if root.hash != 7 || len(root.conflicts) != 2 {
		t.Fatalf("replace on conflict must not append")
	}

	root = root.remove(7, "a")
	keys = keys[:0]
	root.walk(func(k string, v int) bool {
		keys = append(keys, fmt.Sprintf("%s=%d", k, v))
		return true
	})
	if fmt.Sprint(keys) != "[z=26 b=20 c=3]" {
		t.Fatalf("unexpected entries after removing the primary key: %v", keys)
	}
}

func TestMap_RemoveKeepsBalance(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	m := Empty[int, int]()
	present := map[int]bool{}

	for i := 0; i < 3000; i++ {
		k := r.IntN(500)
		if r.IntN(3) == 0 {
			m = m.Remove(k)
			delete(present, k)
		} else {
			m = m.AddOrUpdate(k, i)
			present[k] = true
		}
		checkBalanced(t, m.root)
	}

	for k := 0; k < 500; k++ {
		if m.Contains(k) != present[k] {
			t.Fatalf("key %d: contains=%v, want %v", k, m.Contains(k), present[k])
		}
	}

	if m.Len() != len(present) {
		t.Errorf("len %d, want %d", m.Len(), len(present))
	}
}

func TestMap_ConcurrentReaders(t *testing.T) {
	m := Empty[int, int]()
	for i := 0; i < 100; i++ {
		m = m.AddOrUpdate(i, i)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(snapshot Map[int, int]) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if snapshot.GetValueOrDefault(i) != i {
					t.Errorf("key %d mismatch", i)
				}
			}
		}(m)
		m = m.AddOrUpdate(1000+g, g)
	}
	wg.Wait()
}
