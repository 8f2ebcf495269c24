package conversion

import (
	"sort"
	"strconv"
)

// IDSet is a set of element ids with deterministic iteration order.
type IDSet struct {
	ids map[ID]struct{}
}

func NewIDSet() *IDSet {
	return &IDSet{ids: map[ID]struct{}{}}
}

func (s *IDSet) Add(id ID) {
	s.ids[id] = struct{}{}
}

func (s *IDSet) AddAll(other *IDSet) {
	for id := range other.ids {
		s.ids[id] = struct{}{}
	}
}

func (s *IDSet) Contains(id ID) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *IDSet) Len() int {
	return len(s.ids)
}

// Keys returns the members in ascending numeric order, falling back to
// lexicographic order for ids that do not parse as integers.
func (s *IDSet) Keys() []ID {
	ids := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}

	return sortIDs(ids)
}

// DefaultIDSetMap is a map of id to IDSet that constructs empty sets on
// first use.
type DefaultIDSetMap struct {
	m map[ID]*IDSet
}

func NewDefaultIDSetMap() *DefaultIDSetMap {
	return &DefaultIDSetMap{m: map[ID]*IDSet{}}
}

func (m *DefaultIDSetMap) GetOrCreate(id ID) *IDSet {
	if set, ok := m.m[id]; ok {
		return set
	}

	set := NewIDSet()
	m.m[id] = set
	return set
}

// Get returns the set at the given key, or nil.
func (m *DefaultIDSetMap) Get(id ID) *IDSet {
	return m.m[id]
}

func (m *DefaultIDSetMap) Set(id ID, set *IDSet) {
	m.m[id] = set
}

func (m *DefaultIDSetMap) Delete(id ID) {
	delete(m.m, id)
}

func (m *DefaultIDSetMap) Len() int {
	return len(m.m)
}

func (m *DefaultIDSetMap) SortedKeys() []ID {
	ids := make([]ID, 0, len(m.m))
	for id := range m.m {
		ids = append(ids, id)
	}

	return sortIDs(ids)
}

// ReplaceKey moves the set stored at old into new, merging with any set
// already there.
func (m *DefaultIDSetMap) ReplaceKey(old, new ID) {
	set, ok := m.m[old]
	if !ok {
		return
	}

	delete(m.m, old)

	if existing, ok := m.m[new]; ok {
		existing.AddAll(set)
		return
	}

	m.m[new] = set
}

// DisjointIDSet is a union-find structure over element ids.
type DisjointIDSet struct {
	parent map[ID]ID
}

func NewDisjointIDSet() *DisjointIDSet {
	return &DisjointIDSet{parent: map[ID]ID{}}
}

// Union links the sets containing the two ids.
func (s *DisjointIDSet) Union(a, b ID) {
	rootA, rootB := s.find(a), s.find(b)
	if rootA != rootB {
		s.parent[rootA] = rootB
	}
}

// ExtractSet returns every id reachable from the given one, including
// itself.
func (s *DisjointIDSet) ExtractSet(id ID) *IDSet {
	set := NewIDSet()

	root := s.find(id)
	set.Add(id)
	set.Add(root)
	for member := range s.parent {
		if s.find(member) == root {
			set.Add(member)
		}
	}

	return set
}

func (s *DisjointIDSet) find(id ID) ID {
	for {
		next, ok := s.parent[id]
		if !ok {
			return id
		}
		id = next
	}
}

func sortIDs(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
	return ids
}

func idLess(a, b ID) bool {
	x, xErr := strconv.Atoi(string(a))
	y, yErr := strconv.Atoi(string(b))
	if xErr == nil && yErr == nil {
		return x < y
	}

	return a < b
}
