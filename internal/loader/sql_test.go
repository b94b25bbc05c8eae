package loader_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"CourseStore/internal/course"
	"CourseStore/internal/loader"
)

func openSeedDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := loader.OpenSQL("sqlite://" + filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE courses (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			credits INTEGER,
			description TEXT,
			attributes TEXT
		)`,
		`INSERT INTO courses (id, title, credits, description, attributes) VALUES
			(1, 'Operating Systems', 4, 'Processes and memory', '{"department":"cs","lab":true}'),
			(2, 'Compilers', 3, NULL, NULL),
			(3, '   ', 1, NULL, NULL)`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func TestSQLSource_LoadsRows(t *testing.T) {
	db := openSeedDB(t)

	s := course.NewStore()
	st, err := (&loader.Loader{Store: s}).Load(context.Background(), loader.SQLSource{DB: db})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Loaded != 2 || st.Skipped != 1 {
		t.Fatalf("stats = %+v", st)
	}

	rec, err := s.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := map[string]any{
		"credits":     int64(4),
		"description": "Processes and memory",
		"department":  "cs",
		"lab":         true,
	}
	if diff := cmp.Diff(want, rec.Attributes); diff != "" {
		t.Fatalf("attributes (-want +got):\n%s", diff)
	}

	if got := s.SearchPrefix("compil"); len(got) != 1 || got[0].Title != "Compilers" {
		t.Fatalf("search = %+v", got)
	}
}

func TestSQLSource_CustomQuery(t *testing.T) {
	db := openSeedDB(t)

	src := loader.SQLSource{DB: db, Query: `SELECT title FROM courses WHERE credits >= 3 ORDER BY title`, Label: "seed"}
	rows, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := []map[string]any{{"title": "Compilers"}, {"title": "Operating Systems"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
	if src.Name() != "seed" {
		t.Fatalf("name=%q", src.Name())
	}
}

func TestOpenSQL_RejectsUnknownScheme(t *testing.T) {
	_, err := loader.OpenSQL("mysql://user:secret@db/courses")
	if err == nil {
		t.Fatalf("mysql dsn accepted")
	}
	if got := err.Error(); got != `unsupported dsn scheme: "mysql://***@db/courses"` {
		t.Fatalf("error leaks or changed: %s", got)
	}
}
