package orchestrator

import "github.com/JakeFAU/listing-crawler/internal/crawler"

// Start is the position of a crawl with no history.
var Start = crawler.Position{SequenceIndex: 0, Page: 1}

// Resume computes the position to fetch after cp for a sequence of length n.
// A clean checkpoint advances one page; a flagged one is retried in place.
func Resume(cp crawler.Checkpoint, n int) crawler.Position {
	pos := crawler.Position{SequenceIndex: normalizeIndex(cp.SequenceIndex, n), Page: cp.Page}
	if pos.Page < 1 {
		pos.Page = 1
	}
	if !errorFlag(cp) {
		pos.Page++
	}
	return pos
}

// Wrap moves past the last page of the current URL: the next URL in the
// sequence, first page, cycling back to the first URL after the last.
func Wrap(pos crawler.Position, n int) crawler.Position {
	return crawler.Position{SequenceIndex: normalizeIndex(pos.SequenceIndex+1, n), Page: 1}
}

func errorFlag(cp crawler.Checkpoint) bool {
	if cp.Outcome.Valid() {
		return cp.Outcome.ErrorFlag()
	}
	return cp.Error
}

// normalizeIndex keeps stored indexes usable after the sequence shrinks.
func normalizeIndex(idx, n int) int {
	if n <= 0 {
		return 0
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}
