// Package immap provides an immutable, hash-keyed AVL tree.
//
// Every mutating operation returns a new Map and leaves the receiver untouched, so a
// Map can be shared between goroutines without locks and replaced atomically by the
// owner. Keys are ordered by their hash; keys with equal hashes are kept in the same
// node in insertion order.
package immap

import (
	"hash/maphash"
	"iter"
)

var seed = maphash.MakeSeed()

// Hash returns the hash used to place key in a Map.
func Hash[K comparable](key K) uint64 {
	return maphash.Comparable(seed, key)
}

// Map is an immutable AVL tree. The zero value is an empty map.
type Map[K comparable, V any] struct {
	root *node[K, V]
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

type node[K comparable, V any] struct {
	hash  uint64
	key   K
	value V

	// conflicts holds the other keys with the same hash, in insertion order.
	conflicts []entry[K, V]

	left, right *node[K, V]
	height      int
}

// Empty returns an empty map.
func Empty[K comparable, V any]() Map[K, V] {
	return Map[K, V]{}
}

// IsEmpty reports whether the map has no entries.
func (m Map[K, V]) IsEmpty() bool {
	return m.root == nil
}

// Height returns the height of the underlying tree.
func (m Map[K, V]) Height() int {
	return height(m.root)
}

// Len returns the number of entries. It walks the whole tree.
func (m Map[K, V]) Len() int {
	n := 0
	for range m.All() {
		n++
	}
	return n
}

// GetValueOrDefault returns the value for key, or the zero value when absent.
func (m Map[K, V]) GetValueOrDefault(key K) V {
	v, _ := m.TryFind(key)
	return v
}

// TryFind returns the value stored for key and whether the key is present.
func (m Map[K, V]) TryFind(key K) (V, bool) {
	h := Hash(key)
	n := m.root
	for n != nil {
		switch {
		case h < n.hash:
			n = n.left
		case h > n.hash:
			n = n.right
		default:
			if n.key == key {
				return n.value, true
			}
			for _, c := range n.conflicts {
				if c.key == key {
					return c.value, true
				}
			}
			var zero V
			return zero, false
		}
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present.
func (m Map[K, V]) Contains(key K) bool {
	_, ok := m.TryFind(key)
	return ok
}

// AddOrUpdate returns a map where key is bound to value.
func (m Map[K, V]) AddOrUpdate(key K, value V) Map[K, V] {
	return Map[K, V]{root: m.root.addOrUpdate(Hash(key), key, value, nil)}
}

// AddOrUpdateWith is AddOrUpdate where an existing value is merged with update(old, value).
func (m Map[K, V]) AddOrUpdateWith(key K, value V, update func(old, value V) V) Map[K, V] {
	return Map[K, V]{root: m.root.addOrUpdate(Hash(key), key, value, update)}
}

// Update replaces the value of an existing key. The map is returned unchanged when
// the key is absent. Updating to the zero value keeps the key present, so a later
// Update replaces it in place.
func (m Map[K, V]) Update(key K, value V) Map[K, V] {
	if !m.Contains(key) {
		return m
	}
	return Map[K, V]{root: m.root.addOrUpdate(Hash(key), key, value, nil)}
}

// Remove returns a map without key. The map is returned unchanged when the key is absent.
func (m Map[K, V]) Remove(key K) Map[K, V] {
	if !m.Contains(key) {
		return m
	}
	return Map[K, V]{root: m.root.remove(Hash(key), key)}
}

// All enumerates entries ordered by key hash; colliding keys come in insertion order.
func (m Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.root.walk(yield)
	}
}

// Keys enumerates the keys in the order of All.
func (m Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values enumerates the values in the order of All.
func (m Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

func (n *node[K, V]) walk(yield func(K, V) bool) bool {
	if n == nil {
		return true
	}
	if !n.left.walk(yield) {
		return false
	}
	if !yield(n.key, n.value) {
		return false
	}
	for _, c := range n.conflicts {
		if !yield(c.key, c.value) {
			return false
		}
	}
	return n.right.walk(yield)
}

func height[K comparable, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func (n *node[K, V]) with(left, right *node[K, V]) *node[K, V] {
	return &node[K, V]{
		hash:      n.hash,
		key:       n.key,
		value:     n.value,
		conflicts: n.conflicts,
		left:      left,
		right:     right,
		height:    1 + max(height(left), height(right)),
	}
}

func (n *node[K, V]) addOrUpdate(h uint64, key K, value V, update func(old, value V) V) *node[K, V] {
	if n == nil {
		return &node[K, V]{hash: h, key: key, value: value, height: 1}
	}

	switch {
	case h < n.hash:
		return balance(n.with(n.left.addOrUpdate(h, key, value, update), n.right))
	case h > n.hash:
		return balance(n.with(n.left, n.right.addOrUpdate(h, key, value, update)))
	}

	if n.key == key {
		if update != nil {
			value = update(n.value, value)
		}
		updated := n.with(n.left, n.right)
		updated.value = value
		return updated
	}

	conflicts := make([]entry[K, V], len(n.conflicts), len(n.conflicts)+1)
	copy(conflicts, n.conflicts)
	replaced := false
	for i := range conflicts {
		if conflicts[i].key == key {
			if update != nil {
				value = update(conflicts[i].value, value)
			}
			conflicts[i].value = value
			replaced = true
			break
		}
	}
	if !replaced {
		conflicts = append(conflicts, entry[K, V]{key: key, value: value})
	}

	updated := n.with(n.left, n.right)
	updated.conflicts = conflicts
	return updated
}

func (n *node[K, V]) remove(h uint64, key K) *node[K, V] {
	if n == nil {
		return nil
	}

	switch {
	case h < n.hash:
		return balance(n.with(n.left.remove(h, key), n.right))
	case h > n.hash:
		return balance(n.with(n.left, n.right.remove(h, key)))
	}

	if len(n.conflicts) != 0 {
		updated := n.with(n.left, n.right)
		if n.key == key {
			updated.key, updated.value = n.conflicts[0].key, n.conflicts[0].value
			updated.conflicts = n.conflicts[1:]
		} else {
			conflicts := make([]entry[K, V], 0, len(n.conflicts)-1)
			for _, c := range n.conflicts {
				if c.key != key {
					conflicts = append(conflicts, c)
				}
			}
			updated.conflicts = conflicts
		}
		if len(updated.conflicts) == 0 {
			updated.conflicts = nil
		}
		return updated
	}

	switch {
	case n.left == nil:
		return n.right
	case n.right == nil:
		return n.left
	}

	// Replace the node with the leftmost node of the right subtree.
	successor := n.right
	for successor.left != nil {
		successor = successor.left
	}
	right := n.right.removeMin()
	return balance(successor.with(n.left, right))
}

func (n *node[K, V]) removeMin() *node[K, V] {
	if n.left == nil {
		return n.right
	}
	return balance(n.with(n.left.removeMin(), n.right))
}

func balance[K comparable, V any](n *node[K, V]) *node[K, V] {
	diff := height(n.left) - height(n.right)
	switch {
	case diff > 1:
		if height(n.left.left) >= height(n.left.right) {
			return rotateRight(n)
		}
		return rotateRight(n.with(rotateLeft(n.left), n.right))
	case diff < -1:
		if height(n.right.right) >= height(n.right.left) {
			return rotateLeft(n)
		}
		return rotateLeft(n.with(n.left, rotateRight(n.right)))
	}
	return n
}

func rotateRight[K comparable, V any](n *node[K, V]) *node[K, V] {
	l := n.left
	return l.with(l.left, n.with(l.right, n.right))
}

func rotateLeft[K comparable, V any](n *node[K, V]) *node[K, V] {
	r := n.right
	return r.with(n.with(n.left, r.left), r.right)
}
