package course_test

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"CourseStore/internal/course"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *course.Store {
	t.Helper()
	return course.NewStore(course.WithClock(func() time.Time { return fixedNow }))
}

func strp(s string) *string { return &s }

func mustCreate(t *testing.T, s course.Repository, title string, attrs map[string]any) course.Record {
	t.Helper()
	rec, err := s.Create(course.Input{Title: strp(title), Attributes: attrs})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return rec
}

func ids(recs []course.Record) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestStore_AlgorithmScenario(t *testing.T) {
	s := newStore(t)

	if got := mustCreate(t, s, "Intro to Algorithms", nil).ID; got != 1 {
		t.Fatalf("first id=%d want 1", got)
	}
	if got := mustCreate(t, s, "Algorithms II", nil).ID; got != 2 {
		t.Fatalf("second id=%d want 2", got)
	}

	if diff := cmp.Diff([]int64{1, 2}, ids(s.Search("algorithm"))); diff != "" {
		t.Fatalf("search after create (-want +got):\n%s", diff)
	}

	if _, err := s.Update(1, course.Input{Title: strp("Intro to AI")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if diff := cmp.Diff([]int64{2}, ids(s.Search("algorithm"))); diff != "" {
		t.Fatalf("search after update (-want +got):\n%s", diff)
	}

	if err := s.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := s.Search("algorithm"); len(got) != 0 {
		t.Fatalf("search after delete = %v, want empty", ids(got))
	}
}

func TestStore_Boundaries(t *testing.T) {
	s := newStore(t)

	for _, q := range []string{"", "   ", "!!!"} {
		got := s.Search(q)
		if got == nil || len(got) != 0 {
			t.Fatalf("search(%q) = %#v, want empty non-nil", q, got)
		}
	}

	_, err := s.Get(999)
	if !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("get(999) err=%v, want ErrNotFound", err)
	}
	var nf *course.NotFoundError
	if !errors.As(err, &nf) || nf.ID != 999 {
		t.Fatalf("get(999) err=%#v, want NotFoundError{999}", err)
	}

	_, err = s.Create(course.Input{})
	if !errors.Is(err, course.ErrInvalid) {
		t.Fatalf("create({}) err=%v, want ErrInvalid", err)
	}
	var ve *course.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("create({}) err=%#v, want title ValidationError", err)
	}

	if _, err := s.Update(5, course.Input{Title: strp("x")}); !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("update missing err=%v", err)
	}
	if _, err := s.Replace(5, course.Input{Title: strp("x")}); !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("replace missing err=%v", err)
	}
	if err := s.Delete(5); !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("delete missing err=%v", err)
	}
}

func TestStore_CreateThenGet(t *testing.T) {
	s := newStore(t)

	seen := map[int64]bool{}
	for i := range 20 {
		rec := mustCreate(t, s, fmt.Sprintf("  Course %d  ", i), map[string]any{
			"credits":    i,
			"department": "cs",
			"elective":   i%2 == 0,
		})
		if seen[rec.ID] {
			t.Fatalf("id %d issued twice", rec.ID)
		}
		seen[rec.ID] = true

		if rec.Title != fmt.Sprintf("Course %d", i) {
			t.Fatalf("title not trimmed: %q", rec.Title)
		}

		got, err := s.Get(rec.ID)
		if err != nil {
			t.Fatalf("get %d: %v", rec.ID, err)
		}
		if diff := cmp.Diff(rec, got); diff != "" {
			t.Fatalf("get %d (-created +got):\n%s", rec.ID, diff)
		}
	}

	got, _ := s.Get(3)
	want := map[string]any{"credits": int64(2), "department": "cs", "elective": true}
	if diff := cmp.Diff(want, got.Attributes); diff != "" {
		t.Fatalf("attributes (-want +got):\n%s", diff)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps = %v/%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestStore_Validation(t *testing.T) {
	s := newStore(t)

	cases := []struct {
		name  string
		in    course.Input
		field string
	}{
		{"missing title", course.Input{Attributes: map[string]any{"credits": 3}}, "title"},
		{"blank title", course.Input{Title: strp(" \t ")}, "title"},
		{"long title", course.Input{Title: strp(strings.Repeat("x", course.MaxTitleLen+1))}, "title"},
		{"reserved key", course.Input{Title: strp("ok"), Attributes: map[string]any{"id": 7}}, "id"},
		{"empty key", course.Input{Title: strp("ok"), Attributes: map[string]any{" ": "v"}}, "attributes"},
		{"nested value", course.Input{Title: strp("ok"), Attributes: map[string]any{"tags": []any{"a"}}}, "tags"},
		{"infinite value", course.Input{Title: strp("ok"), Attributes: map[string]any{"credits": math.Inf(1)}}, "credits"},
		{"nan value", course.Input{Title: strp("ok"), Attributes: map[string]any{"credits": math.NaN()}}, "credits"},
		{"infinite float32", course.Input{Title: strp("ok"), Attributes: map[string]any{"credits": float32(math.Inf(-1))}}, "credits"},
		{"keys equal after trim", course.Input{Title: strp("ok"), Attributes: map[string]any{"dept": "a", " dept": "b"}}, "dept"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(tc.in)
			var ve *course.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err=%v, want ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field=%q want %q", ve.Field, tc.field)
			}
		})
	}

	if n := s.Len(); n != 0 {
		t.Fatalf("failed creates left %d records", n)
	}
}

func TestStore_UpdateReindexesTitle(t *testing.T) {
	s := newStore(t)
	a := mustCreate(t, s, "Organic Chemistry", map[string]any{"credits": 4, "lab": true})
	mustCreate(t, s, "Physical Chemistry", nil)

	got, err := s.Update(a.ID, course.Input{
		Title:      strp("Marine Biology"),
		Attributes: map[string]any{"lab": nil, "level": "200"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := map[string]any{"credits": int64(4), "level": "200"}
	if diff := cmp.Diff(want, got.Attributes); diff != "" {
		t.Fatalf("merged attributes (-want +got):\n%s", diff)
	}

	for _, q := range []string{"Marine Biology", "marine", "bio", "iolog", "mar bio"} {
		if !slices.Contains(ids(s.Search(q)), a.ID) {
			t.Fatalf("search(%q) misses updated record", q)
		}
	}
	if diff := cmp.Diff([]int64{2}, ids(s.Search("chemistry"))); diff != "" {
		t.Fatalf("old title still indexed (-want +got):\n%s", diff)
	}
	if got := s.Search("organic"); len(got) != 0 {
		t.Fatalf("search(organic) = %v, want empty", ids(got))
	}
}

func TestStore_UpdateKeepsTitleWhenOmitted(t *testing.T) {
	s := newStore(t)
	a := mustCreate(t, s, "Linear Algebra", nil)

	got, err := s.Update(a.ID, course.Input{Attributes: map[string]any{"credits": 3}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Linear Algebra" {
		t.Fatalf("title=%q", got.Title)
	}
	if diff := cmp.Diff([]int64{a.ID}, ids(s.Search("algebra"))); diff != "" {
		t.Fatalf("search (-want +got):\n%s", diff)
	}

	if _, err := s.Update(a.ID, course.Input{Title: strp("  ")}); !errors.Is(err, course.ErrInvalid) {
		t.Fatalf("blank title update err=%v", err)
	}
	if cur, _ := s.Get(a.ID); cur.Title != "Linear Algebra" {
		t.Fatalf("failed update changed title to %q", cur.Title)
	}
}

func TestStore_Replace(t *testing.T) {
	now := fixedNow
	s := course.NewStore(course.WithClock(func() time.Time { return now }))
	a := mustCreate(t, s, "Databases", map[string]any{"credits": 3, "room": "B12"})

	now = fixedNow.Add(time.Hour)
	got, err := s.Replace(a.ID, course.Input{Title: strp("Distributed Databases"), Attributes: map[string]any{"credits": 4}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	if diff := cmp.Diff(map[string]any{"credits": int64(4)}, got.Attributes); diff != "" {
		t.Fatalf("attributes (-want +got):\n%s", diff)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}

	if _, err := s.Replace(a.ID, course.Input{Attributes: map[string]any{"credits": 1}}); !errors.Is(err, course.ErrInvalid) {
		t.Fatalf("replace without title err=%v", err)
	}
}

func TestStore_DeleteNeverReusesID(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "Alpha", nil)
	b := mustCreate(t, s, "Beta", nil)

	if err := s.Delete(b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(b.ID); !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("get deleted err=%v", err)
	}
	if s.Indexed(b.ID) {
		t.Fatalf("deleted id still indexed")
	}

	c := mustCreate(t, s, "Beta", nil)
	if c.ID == b.ID {
		t.Fatalf("id %d reused", c.ID)
	}

	if diff := cmp.Diff([]int64{c.ID}, ids(s.Search("beta"))); diff != "" {
		t.Fatalf("search (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, c.ID}, ids(slices.Collect(s.List()))); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
}

func TestStore_ListIsSnapshot(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "One", map[string]any{"n": 1})
	mustCreate(t, s, "Two", nil)

	seq := s.List()

	mustCreate(t, s, "Three", nil)
	if _, err := s.Update(1, course.Input{Title: strp("Uno")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("sequence not restartable (-first +second):\n%s", diff)
	}

	var titles []string
	for _, r := range first {
		titles = append(titles, r.Title)
	}
	if diff := cmp.Diff([]string{"One", "Two"}, titles); diff != "" {
		t.Fatalf("snapshot titles (-want +got):\n%s", diff)
	}

	first[0].Attributes["n"] = 99
	got, _ := s.Get(1)
	if got.Attributes["n"] != int64(1) {
		t.Fatalf("caller mutation leaked into store: %v", got.Attributes)
	}
}

func TestStore_ListIdempotent(t *testing.T) {
	s := newStore(t)
	for _, title := range []string{"c", "a", "b"} {
		mustCreate(t, s, title, nil)
	}

	a := slices.Collect(s.List())
	b := slices.Collect(s.List())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("list differs (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids(a)); diff != "" {
		t.Fatalf("insertion order (-want +got):\n%s", diff)
	}
}

func TestStore_SearchModes(t *testing.T) {
	s := newStore(t)
	mustCreate(t, s, "Intro to Algorithms", nil)
	mustCreate(t, s, "Algorithms II", nil)
	mustCreate(t, s, "Café Culture", nil)
	mustCreate(t, s, "Data Structures & Algorithms in C++", nil)

	cases := []struct {
		name  string
		query string
		mode  course.MatchMode
		want  []int64
	}{
		{"substring inside token", "gorithm", course.MatchSubstring, []int64{1, 2, 4}},
		{"prefix rejects inner match", "gorithm", course.MatchPrefix, []int64{}},
		{"prefix", "algo", course.MatchPrefix, []int64{1, 2, 4}},
		{"all tokens must match", "intro algo", course.MatchSubstring, []int64{1}},
		{"case folded", "ALGORITHMS", course.MatchSubstring, []int64{1, 2, 4}},
		{"diacritics dropped in query", "CAFÉ", course.MatchSubstring, []int64{3}},
		{"diacritics dropped in title", "cafe", course.MatchPrefix, []int64{3}},
		{"single rune", "c", course.MatchPrefix, []int64{3, 4}},
		{"short gram", "ii", course.MatchSubstring, []int64{2}},
		{"no match", "zebra", course.MatchSubstring, []int64{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(s.SearchMode(tc.query, tc.mode))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("SearchMode(%q, %v) (-want +got):\n%s", tc.query, tc.mode, diff)
			}
		})
	}
}

func TestStore_ConcurrentCreates(t *testing.T) {
	s := course.NewStore()
	const n = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  = map[int64]bool{}
		done = make(chan struct{})
	)

	// Reader: every listed record must already be searchable.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			for rec := range s.List() {
				if !slices.Contains(ids(s.Search(rec.Title)), rec.ID) {
					t.Errorf("listed record %d not found by its title", rec.ID)
				}
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Create(course.Input{Title: strp(fmt.Sprintf("Seminar %03d", i))})
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if got[rec.ID] {
				t.Errorf("duplicate id %d", rec.ID)
			}
			got[rec.ID] = true
		}()
	}
	wg.Wait()
	close(done)
	<-readerDone

	if len(got) != n || s.Len() != n {
		t.Fatalf("ids=%d len=%d want %d", len(got), s.Len(), n)
	}
	if hits := s.Search("seminar"); len(hits) != n {
		t.Fatalf("search(seminar) = %d hits, want %d", len(hits), n)
	}
}

func TestStore_ConcurrentRenameIsAtomic(t *testing.T) {
	s := course.NewStore()
	rec := mustCreate(t, s, "Alpha Workshop", nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		titles := []string{"Beta Workshop", "Alpha Workshop"}
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if _, err := s.Update(rec.ID, course.Input{Title: strp(titles[i%2])}); err != nil {
				t.Errorf("update: %v", err)
				return
			}
		}
	}()

	for range 2000 {
		alpha := len(s.Search("alpha"))
		beta := len(s.Search("beta"))
		if alpha > 1 || beta > 1 {
			t.Fatalf("double counted: alpha=%d beta=%d", alpha, beta)
		}
		if n := len(s.Search("workshop")); n != 1 {
			t.Fatalf("search(workshop) = %d hits, want 1", n)
		}
	}
}
