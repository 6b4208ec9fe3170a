// Package ranking keeps a bounded, score-ordered index of an actor's posts
// and fans its head out to the aggregator.
package ranking

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/najoast/socialshard/core"
)

// Default bounds.
const (
	DefaultSoftCap = 150
	DefaultHardCap = 100
	DefaultTopN    = 3
)

// Entry is one ranked post.
type Entry struct {
	Score     uint64        `json:"score"`
	PostID    uint64        `json:"post_id"`
	Publisher core.Identity `json:"publisher_canister_id"`
}

// Key identifies the slot an entry occupies. Upserting an entry with the
// same key replaces the previous one.
type Key struct {
	Publisher core.Identity
	PostID    uint64
}

// MarshalText encodes k as "<publisher>#<post id>" so keyed views can be
// JSON objects.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.Publisher.String() + "#" + strconv.FormatUint(k.PostID, 10)), nil
}

// UnmarshalText parses the form written by MarshalText.
func (k *Key) UnmarshalText(text []byte) error {
	s := string(text)
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return fmt.Errorf("post key %q: missing post id", s)
	}
	id, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return fmt.Errorf("post key %q: %w", s, err)
	}
	*k = Key{Publisher: core.Identity(s[:i]), PostID: id}
	return nil
}

// Key returns the slot of e.
func (e Entry) Key() Key {
	return Key{Publisher: e.Publisher, PostID: e.PostID}
}

// compareEntries orders by score descending, then post id descending, then
// publisher ascending.
func compareEntries(a, b Entry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.PostID, a.PostID); c != 0 {
		return c
	}
	return cmp.Compare(a.Publisher, b.Publisher)
}

// Index is an ordered collection with hysteresis trimming: once it grows
// past the soft cap it is cut back to the hard cap.
type Index struct {
	entries []Entry
	softCap int
	hardCap int
}

// NewIndex creates an empty index. Non-positive caps take the defaults.
func NewIndex(softCap, hardCap int) *Index {
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}
	if hardCap <= 0 || hardCap > softCap {
		hardCap = min(DefaultHardCap, softCap)
	}
	return &Index{softCap: softCap, hardCap: hardCap}
}

// Restore rebuilds an index from persisted entries. Duplicate keys keep the
// first occurrence.
func Restore(entries []Entry, softCap, hardCap int) *Index {
	ix := NewIndex(softCap, hardCap)
	seen := make(map[Key]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		ix.entries = append(ix.entries, e)
	}
	slices.SortFunc(ix.entries, compareEntries)
	ix.trim()
	return ix
}

// Upsert inserts e, replacing any entry with the same key, and reports
// whether the insertion triggered a trim.
func (ix *Index) Upsert(e Entry) (trimmed bool) {
	key := e.Key()
	if i := slices.IndexFunc(ix.entries, func(x Entry) bool { return x.Key() == key }); i >= 0 {
		ix.entries = slices.Delete(ix.entries, i, i+1)
	}

	pos, _ := slices.BinarySearchFunc(ix.entries, e, compareEntries)
	ix.entries = slices.Insert(ix.entries, pos, e)

	return ix.trim()
}

func (ix *Index) trim() bool {
	if len(ix.entries) <= ix.softCap {
		return false
	}
	clear(ix.entries[ix.hardCap:])
	ix.entries = ix.entries[:ix.hardCap]
	return true
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Top returns at most n entries, best first.
func (ix *Index) Top(n int) []Entry {
	n = max(0, min(n, len(ix.entries)))
	return slices.Clone(ix.entries[:n])
}

// Entries returns every entry, best first.
func (ix *Index) Entries() []Entry {
	return slices.Clone(ix.entries)
}

// Range returns entries [from, to) clamped to the index length.
func (ix *Index) Range(from, to int) []Entry {
	to = min(to, len(ix.entries))
	if from < 0 || from >= to {
		return []Entry{}
	}
	return slices.Clone(ix.entries[from:to])
}

// Clear drops every entry.
func (ix *Index) Clear() {
	ix.entries = nil
}

// LegacyView is the keyed shape older readers expect: post slot to score.
// It is only ever derived from an Index, never updated on its own.
type LegacyView map[Key]uint64

// Legacy returns the keyed view of the index.
func (ix *Index) Legacy() LegacyView {
	v := make(LegacyView, len(ix.entries))
	for _, e := range ix.entries {
		v[e.Key()] = e.Score
	}
	return v
}

// Ordered returns the view's entries in index order.
func (v LegacyView) Ordered() []Entry {
	out := make([]Entry, 0, len(v))
	for k, score := range v {
		out = append(out, Entry{Score: score, PostID: k.PostID, Publisher: k.Publisher})
	}
	slices.SortFunc(out, compareEntries)
	return out
}
