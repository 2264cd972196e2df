package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ninalin0217/docsplit/internal/models"
)

func TestDecideBelowThreshold(t *testing.T) {
	p := New(50, 20)

	plan := p.Decide(30, Overrides{})

	assert.False(t, plan.ShouldSplit)
	assert.Equal(t, 1, plan.TotalParts)
	assert.Equal(t, []models.PageRange{{Start: 1, End: 30}}, plan.Ranges)
}

func TestDecideExactlyAtThreshold(t *testing.T) {
	p := New(50, 20)

	plan := p.Decide(50, Overrides{})

	assert.False(t, plan.ShouldSplit, "threshold is exclusive: split only above it")
	assert.Equal(t, 1, plan.TotalParts)
}

func TestDecideSplitsIntoEvenRanges(t *testing.T) {
	p := New(50, 20)

	plan := p.Decide(60, Overrides{})

	assert.True(t, plan.ShouldSplit)
	assert.Equal(t, 3, plan.TotalParts)
	assert.Equal(t, []models.PageRange{
		{Start: 1, End: 20},
		{Start: 21, End: 40},
		{Start: 41, End: 60},
	}, plan.Ranges)
}

func TestDecideFinalRangeMayBeShort(t *testing.T) {
	p := New(50, 20)

	plan := p.Decide(65, Overrides{})

	assert.Equal(t, 4, plan.TotalParts)
	last := plan.Ranges[len(plan.Ranges)-1]
	assert.Equal(t, models.PageRange{Start: 61, End: 65}, last)
	assert.Equal(t, 5, last.Pages())
}

func TestDecideRangesAreDenseAndContiguous(t *testing.T) {
	p := New(10, 7)

	plan := p.Decide(93, Overrides{})

	assert.True(t, plan.ShouldSplit)
	next := 1
	total := 0
	for _, r := range plan.Ranges {
		assert.Equal(t, next, r.Start)
		assert.LessOrEqual(t, r.Pages(), 7)
		next = r.End + 1
		total += r.Pages()
	}
	assert.Equal(t, 93, total)
	assert.Equal(t, len(plan.Ranges), plan.TotalParts)
}

func TestDecideOverrides(t *testing.T) {
	p := New(50, 20)

	plan := p.Decide(30, Overrides{Threshold: 10, Size: 15})

	assert.True(t, plan.ShouldSplit)
	assert.Equal(t, 2, plan.TotalParts)
	assert.Equal(t, []models.PageRange{
		{Start: 1, End: 15},
		{Start: 16, End: 30},
	}, plan.Ranges)
}

func TestDecideZeroPages(t *testing.T) {
	p := New(50, 20)

	plan := p.Decide(0, Overrides{})

	assert.False(t, plan.ShouldSplit)
	assert.Equal(t, 0, plan.TotalParts)
	assert.Empty(t, plan.Ranges)
}
