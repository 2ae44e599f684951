package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// triple is the exact deduplication key. Matching is case-sensitive with
// no normalization.
type triple struct {
	source, title, message string
}

func tripleOf(ev Event) triple {
	return triple{source: ev.Source, title: ev.Title, message: ev.Message}
}

// dedupKey is the fixed-width form of a triple used as a unique column by
// the SQL stores. Fields are NUL-separated so ("a", "bc") and ("ab", "c")
// never collide.
func dedupKey(ev Event) string {
	h := sha256.New()
	h.Write([]byte(ev.Source))
	h.Write([]byte{0})
	h.Write([]byte(ev.Title))
	h.Write([]byte{0})
	h.Write([]byte(ev.Message))
	return hex.EncodeToString(h.Sum(nil))
}

// eventTime returns the event timestamp, defaulting to now.
func eventTime(ev Event, now func() time.Time) time.Time {
	if ev.Timestamp.IsZero() {
		return now()
	}
	return ev.Timestamp
}

// sortNotifications orders by Timestamp descending; seq holds insertion
// order and breaks ties, earlier first.
func sortNotifications(ns []Notification, seq []uint64) {
	idx := make([]int, len(ns))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := ns[idx[a]].Timestamp, ns[idx[b]].Timestamp
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return seq[idx[a]] < seq[idx[b]]
	})

	sorted := make([]Notification, len(ns))
	for i, j := range idx {
		sorted[i] = ns[j]
	}
	copy(ns, sorted)
}
