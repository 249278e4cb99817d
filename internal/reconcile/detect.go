package reconcile

import (
	"golang.org/x/text/cases"

	"github.com/roach88/filingindex/internal/store"
)

// ChangedCIKs returns the filers whose latest filing reports a different
// name than the stored one, on a day after their last recorded name
// change. Filers without a name history are never reported.
func ChangedCIKs(evidence []store.NameEvidence) []string {
	fold := cases.Fold()
	var out []string
	for _, e := range evidence {
		if !e.HasNameHistory || e.LatestName == "" {
			continue
		}
		if fold.String(e.LatestName) == fold.String(e.ConformedName) {
			continue
		}
		if !day(e.LatestPubDate).After(day(e.LastNameChange)) {
			continue
		}
		out = append(out, e.CIK)
	}
	return out
}
