// Package feeddiff decides which monthly feeds of a listing need to be
// loaded: new feeds, feeds whose upstream copy changed since the last
// successful load, and the optional date window around them.
package feeddiff

import (
	"sort"
	"time"

	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/model"
)

// Status classifies a listing entry against the store.
type Status int

const (
	Unchanged Status = iota
	New
	Modified
)

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case Modified:
		return "modified"
	}
	return "unchanged"
}

// Candidate is a listing entry with its classification.
type Candidate struct {
	fetch.Entry
	Status Status
}

// Classify compares listing entries with the stored last-modified stamps.
// An entry is New when its feed id is not stored and Modified when the
// remote stamp is strictly later than the stored one. The result is sorted
// by feed id ascending.
func Classify(entries []fetch.Entry, stored map[int64]time.Time) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		c := Candidate{Entry: e}
		lastMod, ok := stored[e.FeedID]
		switch {
		case !ok:
			c.Status = New
		case e.LastModified.After(lastMod):
			c.Status = Modified
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FeedID < out[j].FeedID })
	return out
}

// Changed returns the new and modified candidates, keeping order.
func Changed(cands []Candidate) []Candidate {
	out := []Candidate{}
	for _, c := range cands {
		if c.Status != Unchanged {
			out = append(out, c)
		}
	}
	return out
}

// FilterByDate keeps entries whose feed date lies in [from, to]. A zero
// bound is open. to is widened to the last day of its month. When keepLast
// is set and the IsLastMonth entry fell outside the window it is appended,
// so the latest pseudo-feed always has its month loaded first.
func FilterByDate(entries []fetch.Entry, from, to time.Time, keepLast bool) ([]fetch.Entry, error) {
	if from.IsZero() && to.IsZero() {
		return entries, nil
	}
	if !to.IsZero() {
		to = model.MonthEnd(to)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, model.Errorf(model.ErrCodeBadDateRange,
			"from date %s is after to date %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	out := []fetch.Entry{}
	lastKept := false
	for _, e := range entries {
		in := (from.IsZero() || !e.FeedDate.Before(from)) && (to.IsZero() || !e.FeedDate.After(to))
		if in {
			out = append(out, e)
			if e.IsLastMonth {
				lastKept = true
			}
		}
		if keepLast && !lastKept && e.IsLastMonth {
			out = append(out, e)
			lastKept = true
		}
	}
	return out, nil
}
