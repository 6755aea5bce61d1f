// Package toc indexes a document outline so the current page can be mapped
// to its enclosing chapter.
package toc

// Entry is one outline item in depth-first order. Level starts at 1, Page is
// 1-based and -1 when the item has no destination page.
type Entry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Page  int    `json:"page"`
	URI   string `json:"uri,omitempty"`
}

// Index holds the outline with the parent of every entry.
type Index struct {
	entries []Entry
	parents []int
}

// NewIndex computes entry parents. Levels that jump by more than one are
// attached to the nearest shallower entry.
func NewIndex(entries []Entry) *Index {
	idx := &Index{
		entries: append([]Entry(nil), entries...),
		parents: make([]int, len(entries)),
	}
	var stack []int
	for i, e := range idx.entries {
		for len(stack) > 0 && idx.entries[stack[len(stack)-1]].Level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		idx.parents[i] = -1
		if len(stack) > 0 {
			idx.parents[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	return idx
}

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.entries) }

// Entries returns a copy of the outline.
func (x *Index) Entries() []Entry { return append([]Entry(nil), x.entries...) }

// Parent returns the parent entry index, or -1 for top-level entries.
func (x *Index) Parent(i int) int {
	if i < 0 || i >= len(x.parents) {
		return -1
	}
	return x.parents[i]
}

// Locate returns the entry the 0-based page belongs to: the entry before the
// first one starting after the page, the first entry when none starts at or
// before it, and the last entry when none starts after it. It returns -1 for
// an empty outline.
func (x *Index) Locate(page int) int {
	if len(x.entries) == 0 {
		return -1
	}
	for i, e := range x.entries {
		if e.Page-1 > page {
			if i > 0 {
				return i - 1
			}
			return 0
		}
	}
	return len(x.entries) - 1
}

// Breadcrumb returns the titles from the root down to entry i.
func (x *Index) Breadcrumb(i int) []string {
	if i < 0 || i >= len(x.entries) {
		return nil
	}
	var titles []string
	for ; i >= 0; i = x.parents[i] {
		titles = append(titles, x.entries[i].Title)
	}
	for l, r := 0, len(titles)-1; l < r; l, r = l+1, r-1 {
		titles[l], titles[r] = titles[r], titles[l]
	}
	return titles
}
