package loader

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DefaultQuery = `SELECT * FROM courses ORDER BY id`

	// attributesColumn holds a JSON object merged into the record.
	attributesColumn = "attributes"

	queryTimeout = 30 * time.Second
)

// OpenSQL opens a seed database, choosing the driver from the DSN scheme.
func OpenSQL(dsn string) (*sql.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return sql.Open("pgx", dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"):
		return sql.Open("sqlite", dsn)
	default:
		return nil, fmt.Errorf("unsupported dsn scheme: %q", redact(dsn))
	}
}

// SQLSource turns each row of Query into a record: columns become fields and
// an "attributes" column with a JSON object is expanded in place.
type SQLSource struct {
	DB    *sql.DB
	Query string
	Label string
}

func (s SQLSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "sql"
}

func (s SQLSource) Fetch(ctx context.Context) ([]map[string]any, error) {
	q := s.Query
	if q == "" {
		q = DefaultQuery
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, 64)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		m, err := rowRecord(cols, vals)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out), err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func rowRecord(cols []string, vals []any) (map[string]any, error) {
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}

		if strings.EqualFold(c, attributesColumn) {
			if err := expandAttributes(m, v); err != nil {
				return nil, err
			}
			continue
		}
		if v == nil {
			continue
		}
		m[strings.ToLower(c)] = v
	}
	return m, nil
}

func expandAttributes(m map[string]any, v any) error {
	var raw string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		raw = x
	default:
		return fmt.Errorf("%s: unexpected %T", attributesColumn, v)
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var attrs map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return fmt.Errorf("%s: %w", attributesColumn, err)
	}
	for k, a := range attrs {
		if _, taken := m[k]; !taken {
			m[k] = a
		}
	}
	return nil
}

// redact hides credentials in a DSN for error messages.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "***"
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}
