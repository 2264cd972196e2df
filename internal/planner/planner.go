// Package planner decides whether and how to split a document into
// page-range parts. It is pure: no I/O, deterministic, no side effects.
package planner

import (
	"github.com/ninalin0217/docsplit/internal/models"
)

// Planner carries the process-wide split defaults.
type Planner struct {
	threshold int // pages above which a document is split
	size      int // max pages per part
}

// Overrides are per-request replacements for the defaults. Zero means
// "use the default".
type Overrides struct {
	Threshold int
	Size      int
}

// Plan is the partition decision for one document.
type Plan struct {
	ShouldSplit bool
	TotalParts  int
	Ranges      []models.PageRange
}

func New(threshold, size int) *Planner {
	if threshold <= 0 {
		threshold = 1
	}
	if size <= 0 {
		size = 1
	}
	return &Planner{threshold: threshold, size: size}
}

// Decide computes the partition plan for a document of pageCount pages.
// Pages are 1-based. A document at or under the effective threshold is
// never split and yields a single range spanning the whole document.
func (p *Planner) Decide(pageCount int, o Overrides) Plan {
	threshold := p.threshold
	if o.Threshold > 0 {
		threshold = o.Threshold
	}
	size := p.size
	if o.Size > 0 {
		size = o.Size
	}

	if pageCount <= 0 {
		return Plan{TotalParts: 0, Ranges: nil}
	}

	if pageCount <= threshold {
		return Plan{
			ShouldSplit: false,
			TotalParts:  1,
			Ranges:      []models.PageRange{{Start: 1, End: pageCount}},
		}
	}

	totalParts := (pageCount + size - 1) / size
	ranges := make([]models.PageRange, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		start := i*size + 1
		end := (i + 1) * size
		if end > pageCount {
			end = pageCount
		}
		ranges = append(ranges, models.PageRange{Start: start, End: end})
	}
	return Plan{ShouldSplit: true, TotalParts: totalParts, Ranges: ranges}
}
