package orderbook

import (
	"sort"

	"github.com/tidwall/btree"

	"mboflow/models"
)

// levelIndex keeps the price levels of one side ordered best first.
type levelIndex interface {
	get(price models.Price) *PriceLevel
	insert(l *PriceLevel)
	remove(price models.Price)
	best() *PriceLevel
	len() int
	// each visits levels best first until fn returns false.
	each(fn func(*PriceLevel) bool)
	clear()
}

// treeIndex stores levels in a B-tree keyed by price.
type treeIndex struct {
	tree       *btree.Map[models.Price, *PriceLevel]
	descending bool
}

func newTreeIndex(descending bool) *treeIndex {
	return &treeIndex{
		tree:       btree.NewMap[models.Price, *PriceLevel](32),
		descending: descending,
	}
}

func (t *treeIndex) get(price models.Price) *PriceLevel {
	l, _ := t.tree.Get(price)
	return l
}

func (t *treeIndex) insert(l *PriceLevel) {
	t.tree.Set(l.Price, l)
}

func (t *treeIndex) remove(price models.Price) {
	t.tree.Delete(price)
}

func (t *treeIndex) best() *PriceLevel {
	var l *PriceLevel
	if t.descending {
		_, l, _ = t.tree.Max()
	} else {
		_, l, _ = t.tree.Min()
	}
	return l
}

func (t *treeIndex) len() int { return t.tree.Len() }

func (t *treeIndex) each(fn func(*PriceLevel) bool) {
	iter := func(_ models.Price, l *PriceLevel) bool { return fn(l) }
	if t.descending {
		t.tree.Reverse(iter)
	} else {
		t.tree.Scan(iter)
	}
}

func (t *treeIndex) clear() { t.tree.Clear() }

// sliceIndex stores levels in a slice sorted best first and locates them by
// binary search.
type sliceIndex struct {
	levels     []*PriceLevel
	descending bool
}

func newSliceIndex(descending bool) *sliceIndex {
	return &sliceIndex{
		levels:     make([]*PriceLevel, 0, 256),
		descending: descending,
	}
}

// search returns the position of the first level not better than price.
func (s *sliceIndex) search(price models.Price) int {
	if s.descending {
		return sort.Search(len(s.levels), func(i int) bool { return s.levels[i].Price <= price })
	}
	return sort.Search(len(s.levels), func(i int) bool { return s.levels[i].Price >= price })
}

func (s *sliceIndex) get(price models.Price) *PriceLevel {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].Price == price {
		return s.levels[i]
	}
	return nil
}

func (s *sliceIndex) insert(l *PriceLevel) {
	i := s.search(l.Price)
	if i < len(s.levels) && s.levels[i].Price == l.Price {
		s.levels[i] = l
		return
	}
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = l
}

func (s *sliceIndex) remove(price models.Price) {
	i := s.search(price)
	if i >= len(s.levels) || s.levels[i].Price != price {
		return
	}
	copy(s.levels[i:], s.levels[i+1:])
	s.levels[len(s.levels)-1] = nil
	s.levels = s.levels[:len(s.levels)-1]
}

func (s *sliceIndex) best() *PriceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

func (s *sliceIndex) len() int { return len(s.levels) }

func (s *sliceIndex) each(fn func(*PriceLevel) bool) {
	for _, l := range s.levels {
		if !fn(l) {
			return
		}
	}
}

func (s *sliceIndex) clear() {
	for i := range s.levels {
		s.levels[i] = nil
	}
	s.levels = s.levels[:0]
}
