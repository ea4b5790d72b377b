package ratelimit

import "time"

// Window is the ordered list of admitted request times for one client address
type Window []time.Time

// Trim drops every timestamp strictly before cutoff. The receiver's backing
// array is reused.
func (w Window) Trim(cutoff time.Time) Window {
	i := 0
	for i < len(w) && w[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return w
	}
	n := copy(w, w[i:])
	return w[:n]
}

// Latest returns the most recent timestamp, or the zero time for an empty window
func (w Window) Latest() time.Time {
	if len(w) == 0 {
		return time.Time{}
	}
	return w[len(w)-1]
}

// Expired reports whether no timestamp in w is at or after cutoff
func (w Window) Expired(cutoff time.Time) bool {
	return len(w) == 0 || w.Latest().Before(cutoff)
}
