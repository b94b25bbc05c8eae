package course

import (
	"iter"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

const treeDegree = 32

// Store owns all course records and the title index derived from them.
// Reads share the lock; every mutation holds it exclusively for the record
// change and the matching index change together.
type Store struct {
	mu      sync.RWMutex
	records *btree.Map[int64, Record]
	index   *TitleIndex
	lastID  int64
	now     func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		records: btree.NewMap[int64, Record](treeDegree),
		index:   NewTitleIndex(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Create(in Input) (Record, error) {
	title, err := checkTitle(in.Title)
	if err != nil {
		return Record{}, err
	}
	attrs, err := checkAttributes(in.Attributes, false)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	now := s.now().UTC()
	rec := Record{
		ID:         s.lastID,
		Title:      title,
		Attributes: attrs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.records.Set(rec.ID, rec)
	s.index.Add(rec.ID, rec.Title)
	return rec.clone(), nil
}

func (s *Store) Get(id int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records.Get(id)
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}
	return rec.clone(), nil
}

// List returns the records in insertion order as they were when List was
// called. The sequence may be ranged over any number of times.
func (s *Store) List() iter.Seq[Record] {
	// Copy is O(1) copy-on-write but bumps the source tree's isolation id,
	// so it needs the exclusive lock.
	s.mu.Lock()
	snap := s.records.Copy()
	s.mu.Unlock()

	return func(yield func(Record) bool) {
		snap.Scan(func(_ int64, rec Record) bool {
			return yield(rec.clone())
		})
	}
}

// Update applies a partial change: a given title replaces the current one,
// attributes are merged and nil attribute values are removed.
func (s *Store) Update(id int64, in Input) (Record, error) {
	var title string
	if in.Title != nil {
		t, err := checkTitle(in.Title)
		if err != nil {
			return Record{}, err
		}
		title = t
	}
	patch, err := checkAttributes(in.Attributes, true)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records.Get(id)
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}

	next := cur
	next.Attributes = mergeAttributes(cur.Attributes, patch)
	if in.Title != nil {
		next.Title = title
	}
	return s.commit(cur, next), nil
}

// Replace overwrites title and attributes; the title is required.
func (s *Store) Replace(id int64, in Input) (Record, error) {
	title, err := checkTitle(in.Title)
	if err != nil {
		return Record{}, err
	}
	attrs, err := checkAttributes(in.Attributes, false)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records.Get(id)
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}

	next := cur
	next.Title = title
	next.Attributes = attrs
	return s.commit(cur, next), nil
}

// commit stores next in place of cur. Callers hold the write lock.
func (s *Store) commit(cur, next Record) Record {
	next.UpdatedAt = s.now().UTC()
	s.records.Set(next.ID, next)
	if next.Title != cur.Title {
		s.index.Reindex(next.ID, next.Title)
	}
	return next.clone()
}

func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records.Delete(id); !ok {
		return &NotFoundError{ID: id}
	}
	s.index.Remove(id)
	return nil
}

// Search matches query as substrings of title tokens. A blank query yields
// no results. Results are ordered by ascending id.
func (s *Store) Search(query string) []Record {
	return s.SearchMode(query, MatchSubstring)
}

// SearchPrefix matches query tokens against the start of title tokens.
func (s *Store) SearchPrefix(query string) []Record {
	return s.SearchMode(query, MatchPrefix)
}

func (s *Store) SearchMode(query string, mode MatchMode) []Record {
	toks := Tokenize(query)
	if len(toks) == 0 {
		return []Record{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.index.Match(toks, mode)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records.Get(id); ok {
			out = append(out, rec.clone())
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Len()
}

func (s *Store) IndexSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// Indexed reports whether id currently has title index entries.
func (s *Store) Indexed(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Contains(id)
}
