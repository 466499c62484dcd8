package ebook

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newNaturalCollator builds a collator that compares embedded digit runs as
// integers, so page2 sorts before page10. Collators are not safe for
// concurrent use, so each call site gets its own.
func newNaturalCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
}

// AssignNaturalOrder stamps each page's NaturalIndex with its position under
// a natural-numeric sort of source names. Ties keep ingestion order.
func AssignNaturalOrder(ws *WorkingSet) {
	coll := newNaturalCollator()
	order := make([]int, ws.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return coll.CompareString(ws.Pages[order[a]].SourceName, ws.Pages[order[b]].SourceName) < 0
	})
	for rank, original := range order {
		ws.Pages[original].NaturalIndex = rank
	}
}

// NaturalCompare orders two names with digit runs compared numerically.
func NaturalCompare(a, b string) int {
	return newNaturalCollator().CompareString(a, b)
}
