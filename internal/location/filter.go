package location

import "sort"

// Filter narrows the identifier space to indices known to exist. A nil
// *Filter admits every index.
type Filter struct {
	sorted []int
	set    map[int]struct{}
}

// NewFilter builds a filter from the given indices. Duplicates and negative
// values are dropped.
func NewFilter(indices ...int) *Filter {
	f := &Filter{set: make(map[int]struct{}, len(indices))}
	for _, i := range indices {
		if i < 0 {
			continue
		}
		if _, ok := f.set[i]; ok {
			continue
		}
		f.set[i] = struct{}{}
		f.sorted = append(f.sorted, i)
	}
	sort.Ints(f.sorted)
	return f
}

// Len reports how many indices the filter admits; -1 for a nil filter.
func (f *Filter) Len() int {
	if f == nil {
		return -1
	}
	return len(f.sorted)
}

// Contains reports whether index should be dispatched.
func (f *Filter) Contains(index int) bool {
	if f == nil {
		return index >= 0
	}
	_, ok := f.set[index]
	return ok
}

// Max returns the largest known index. ok is false for a nil or empty filter.
func (f *Filter) Max() (int, bool) {
	if f == nil || len(f.sorted) == 0 {
		return 0, false
	}
	return f.sorted[len(f.sorted)-1], true
}

// Candidates returns the admitted indices in [start, end), ascending.
func (f *Filter) Candidates(start, end int) []int {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil
	}
	if f == nil {
		out := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, i)
		}
		return out
	}
	lo := sort.SearchInts(f.sorted, start)
	hi := sort.SearchInts(f.sorted, end)
	if lo >= hi {
		return nil
	}
	return append([]int(nil), f.sorted[lo:hi]...)
}
