package toc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var outline = []Entry{
	{Level: 1, Title: "Intro", Page: 1},
	{Level: 1, Title: "Part I", Page: 3},
	{Level: 2, Title: "Chapter 1", Page: 3},
	{Level: 3, Title: "Section 1.1", Page: 4},
	{Level: 2, Title: "Chapter 2", Page: 7},
	{Level: 1, Title: "Appendix", Page: -1},
	{Level: 1, Title: "Index", Page: 12},
}

func TestParents(t *testing.T) {
	x := NewIndex(outline)
	got := make([]int, x.Len())
	for i := range got {
		got[i] = x.Parent(i)
	}
	want := []int{-1, -1, 1, 2, 1, -1, -1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parents (-want +got):\n%s", diff)
	}
}

func TestLocate(t *testing.T) {
	x := NewIndex(outline)
	cases := []struct {
		page, want int
	}{
		{0, 0},
		{1, 0},
		{2, 2},  // first entry after page 2 is Section 1.1
		{3, 3},
		{5, 3},
		{6, 5},  // stepping back lands on the page-less Appendix
		{11, 6}, // nothing after: last entry
		{40, 6},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, x.Locate(c.page), "page %d", c.page)
	}

	late := NewIndex([]Entry{{Level: 1, Title: "Late", Page: 5}})
	assert.Equal(t, 0, late.Locate(0))
	assert.Equal(t, -1, NewIndex(nil).Locate(3))
}

func TestBreadcrumb(t *testing.T) {
	x := NewIndex(outline)
	assert.Equal(t, []string{"Part I", "Chapter 1", "Section 1.1"}, x.Breadcrumb(x.Locate(4)))
	assert.Equal(t, []string{"Intro"}, x.Breadcrumb(0))
	assert.Nil(t, x.Breadcrumb(-1))
}

func TestLevelJump(t *testing.T) {
	x := NewIndex([]Entry{
		{Level: 1, Title: "A", Page: 1},
		{Level: 3, Title: "deep", Page: 2},
		{Level: 2, Title: "B", Page: 3},
	})
	assert.Equal(t, 0, x.Parent(1))
	assert.Equal(t, 0, x.Parent(2))
}
