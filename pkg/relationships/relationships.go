// Package relationships holds the follow-graph data model and the
// non-follower calculation.
//
// Account identifiers are normalized once, where provider data is decoded,
// into their canonical decimal string form. Both sides of a comparison are
// therefore always keyed by the same AccountID representation.
package relationships

import (
	"sort"
	"strings"
)

// AccountID identifies one account. It is the provider's numeric user id
// rendered in base 10 with no sign, padding or quotes.
type AccountID string

// Profile is an immutable snapshot of one account as returned by the provider
type Profile struct {
	Handle      string `json:"username"`
	DisplayName string `json:"full_name"`
	AvatarURL   string `json:"profile_pic_url,omitempty"`
}

// Set maps account ids to profiles for one direction of the follow graph
type Set map[AccountID]Profile

// Has reports whether id is a key of s
func (s Set) Has(id AccountID) bool {
	_, ok := s[id]
	return ok
}

// Relationships is what the provider returns for one authenticated account
type Relationships struct {
	Followers Set
	Following Set
}

// Result holds the accounts that are followed but do not follow back
type Result struct {
	Accounts Set `json:"accounts"`
	Total    int `json:"total"`
}

// Entry is one row of a rendered result
type Entry struct {
	ID      AccountID `json:"id"`
	Profile Profile   `json:"profile"`
}

// ComputeNonFollowers returns every entry of following whose id is not a key
// of followers.
func ComputeNonFollowers(following, followers Set) Result {
	accounts := make(Set)
	for id, profile := range following {
		if !followers.Has(id) {
			accounts[id] = profile
		}
	}
	return Result{Accounts: accounts, Total: len(accounts)}
}

// Sorted returns the result ordered by handle, case-insensitively, then by id
func (r Result) Sorted() []Entry {
	entries := make([]Entry, 0, len(r.Accounts))
	for id, profile := range r.Accounts {
		entries = append(entries, Entry{ID: id, Profile: profile})
	}
	sort.Slice(entries, func(i, j int) bool {
		hi := strings.ToLower(entries[i].Profile.Handle)
		hj := strings.ToLower(entries[j].Profile.Handle)
		if hi != hj {
			return hi < hj
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}
