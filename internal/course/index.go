package course

import (
	"math"
	"slices"
	"strings"

	"github.com/tidwall/btree"
)

type MatchMode int

const (
	// MatchSubstring: every query token occurs inside some title token.
	MatchSubstring MatchMode = iota
	// MatchPrefix: every query token starts some title token.
	MatchPrefix
)

func ParseMatchMode(s string) (MatchMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "substring":
		return MatchSubstring, true
	case "prefix":
		return MatchPrefix, true
	default:
		return 0, false
	}
}

func (m MatchMode) String() string {
	if m == MatchPrefix {
		return "prefix"
	}
	return "substring"
}

type posting struct {
	key string
	id  int64
}

func postingLess(a, b posting) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.id < b.id
}

// TitleIndex maps normalized title tokens and their n-grams to record ids.
// Postings are kept ordered by (key, id) so a lookup yields ids already sorted
// and a prefix lookup is a single range scan. It is not safe for concurrent
// use; Store guards it with its own lock.
type TitleIndex struct {
	tokens *btree.BTreeG[posting]
	grams  *btree.BTreeG[posting]
	byID   map[int64][]string
}

func NewTitleIndex() *TitleIndex {
	opts := btree.Options{NoLocks: true}
	return &TitleIndex{
		tokens: btree.NewBTreeGOptions(postingLess, opts),
		grams:  btree.NewBTreeGOptions(postingLess, opts),
		byID:   make(map[int64][]string),
	}
}

func (x *TitleIndex) Add(id int64, title string) {
	toks := Tokenize(title)
	x.byID[id] = toks

	for _, t := range toks {
		x.tokens.Set(posting{key: t, id: id})
		for _, g := range grams(t) {
			x.grams.Set(posting{key: g, id: id})
		}
	}
}

func (x *TitleIndex) Remove(id int64) {
	toks, ok := x.byID[id]
	if !ok {
		return
	}
	delete(x.byID, id)

	for _, t := range toks {
		x.tokens.Delete(posting{key: t, id: id})
		for _, g := range grams(t) {
			x.grams.Delete(posting{key: g, id: id})
		}
	}
}

// Reindex swaps the entries for id from its old title to title.
func (x *TitleIndex) Reindex(id int64, title string) {
	x.Remove(id)
	x.Add(id, title)
}

func (x *TitleIndex) Contains(id int64) bool {
	_, ok := x.byID[id]
	return ok
}

// Size is the number of postings held across both trees.
func (x *TitleIndex) Size() int {
	return x.tokens.Len() + x.grams.Len()
}

// Match resolves already-normalized query tokens to matching ids in
// ascending order. An empty token list matches nothing.
func (x *TitleIndex) Match(query []string, mode MatchMode) []int64 {
	if len(query) == 0 {
		return nil
	}

	var ids []int64
	for i, q := range query {
		var next []int64
		if mode == MatchPrefix {
			next = x.prefix(q)
		} else {
			next = x.substring(q)
		}

		if i == 0 {
			ids = next
		} else {
			ids = intersect(ids, next)
		}
		if len(ids) == 0 {
			return nil
		}
	}
	return ids
}

func (x *TitleIndex) prefix(p string) []int64 {
	seen := make(map[int64]struct{})
	x.tokens.Ascend(posting{key: p, id: math.MinInt64}, func(it posting) bool {
		if !strings.HasPrefix(it.key, p) {
			return false
		}
		seen[it.id] = struct{}{}
		return true
	})

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (x *TitleIndex) substring(q string) []int64 {
	tris := trigrams(q)
	if len(tris) <= 1 {
		// q is itself an indexed gram.
		return x.exact(x.grams, q)
	}

	var cand []int64
	for i, g := range tris {
		ids := x.exact(x.grams, g)
		if i == 0 {
			cand = ids
		} else {
			cand = intersect(cand, ids)
		}
		if len(cand) == 0 {
			return nil
		}
	}

	// Trigrams may come from different tokens or positions; confirm on the
	// candidate set only.
	out := cand[:0]
	for _, id := range cand {
		if slices.ContainsFunc(x.byID[id], func(t string) bool { return strings.Contains(t, q) }) {
			out = append(out, id)
		}
	}
	return out
}

func (x *TitleIndex) exact(tr *btree.BTreeG[posting], key string) []int64 {
	var out []int64
	tr.Ascend(posting{key: key, id: math.MinInt64}, func(it posting) bool {
		if it.key != key {
			return false
		}
		out = append(out, it.id)
		return true
	})
	return out
}

// intersect merges two ascending id lists.
func intersect(a, b []int64) []int64 {
	out := make([]int64, 0, min(len(a), len(b)))
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
