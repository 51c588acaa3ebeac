package paginator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		raw        string
		wantNumber int
		wantPages  int
		wantOffset int
	}{
		{name: "first page by default", total: 13, raw: "", wantNumber: 1, wantPages: 2, wantOffset: 0},
		{name: "second page", total: 13, raw: "2", wantNumber: 2, wantPages: 2, wantOffset: 10},
		{name: "past the end clamps to last", total: 13, raw: "99", wantNumber: 2, wantPages: 2, wantOffset: 10},
		{name: "garbage is first page", total: 13, raw: "abc", wantNumber: 1, wantPages: 2, wantOffset: 0},
		{name: "negative is last page", total: 13, raw: "-3", wantNumber: 2, wantPages: 2, wantOffset: 10},
		{name: "zero is last page", total: 13, raw: "0", wantNumber: 2, wantPages: 2, wantOffset: 10},
		{name: "overflow is last page", total: 13, raw: "99999999999999999999", wantNumber: 2, wantPages: 2, wantOffset: 10},
		{name: "garbage on empty result", total: 0, raw: "x", wantNumber: 1, wantPages: 1, wantOffset: 0},
		{name: "empty result has one page", total: 0, raw: "5", wantNumber: 1, wantPages: 1, wantOffset: 0},
		{name: "exact multiple", total: 20, raw: "2", wantNumber: 2, wantPages: 2, wantOffset: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.total, PostsPerPage, tt.raw)
			assert.Equal(t, tt.wantNumber, p.Number)
			assert.Equal(t, tt.wantPages, p.NumPages)
			assert.Equal(t, tt.wantOffset, p.Offset())
			assert.Equal(t, PostsPerPage, p.Limit())
		})
	}
}

func TestPage_Navigation(t *testing.T) {
	p := New(25, 10, "2")
	assert.True(t, p.HasNext())
	assert.True(t, p.HasPrevious())
	assert.True(t, p.HasOtherPages())
	assert.Equal(t, 3, p.NextNumber())
	assert.Equal(t, 1, p.PreviousNumber())
	assert.Equal(t, []int{1, 2, 3}, p.Range())

	single := New(3, 10, "1")
	assert.False(t, single.HasOtherPages())
}
