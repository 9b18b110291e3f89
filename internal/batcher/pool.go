package batcher

// Pool is the ordered, deduplicated list of every Item found in one content
// scope. It only steers prefetching and is never needed for correctness.
// A Pool is immutable once built.
type Pool struct {
	items []Item
	index map[Item]int
}

// NewPool builds a Pool from items in document order, keeping the first
// occurrence of each duplicate.
func NewPool(items []Item) *Pool {
	p := &Pool{
		items: make([]Item, 0, len(items)),
		index: make(map[Item]int, len(items)),
	}
	for _, item := range items {
		if _, seen := p.index[item]; seen {
			continue
		}
		p.index[item] = len(p.items)
		p.items = append(p.items, item)
	}
	return p
}

// Len returns the number of distinct items. A nil Pool is empty.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Items returns a copy of the pooled items.
func (p *Pool) Items() []Item {
	if p == nil {
		return nil
	}
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// position returns the index of item in the pool, or -1.
func (p *Pool) position(item Item) int {
	if p == nil {
		return -1
	}
	if idx, ok := p.index[item]; ok {
		return idx
	}
	return -1
}
