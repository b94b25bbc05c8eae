package course

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	fieldID        = "id"
	fieldTitle     = "title"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"

	MaxTitleLen = 256
	maxAttrKey  = 64
)

// Record is a single course. Attributes hold every field other than the
// store-managed ones and are always scalar (string, bool, int64, float64).
type Record struct {
	ID         int64
	Title      string
	Attributes map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r Record) clone() Record {
	r.Attributes = maps.Clone(r.Attributes)
	return r
}

// MarshalJSON flattens attributes next to the managed fields.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Attributes)+4)
	for k, v := range r.Attributes {
		m[k] = v
	}
	m[fieldID] = r.ID
	m[fieldTitle] = r.Title
	m[fieldCreatedAt] = r.CreatedAt
	m[fieldUpdatedAt] = r.UpdatedAt
	return json.Marshal(m)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	var out Record
	for k, v := range m {
		switch k {
		case fieldID:
			n, ok := v.(float64)
			if !ok {
				return fmt.Errorf("id: unexpected %T", v)
			}
			out.ID = int64(n)
		case fieldTitle:
			s, _ := v.(string)
			out.Title = s
		case fieldCreatedAt, fieldUpdatedAt:
			s, _ := v.(string)
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			if k == fieldCreatedAt {
				out.CreatedAt = t
			} else {
				out.UpdatedAt = t
			}
		default:
			if out.Attributes == nil {
				out.Attributes = make(map[string]any)
			}
			out.Attributes[k] = v
		}
	}

	*r = out
	return nil
}

// Input carries the caller-supplied part of a record. A nil Title means
// "not given"; a nil attribute value means "remove" on update.
type Input struct {
	Title      *string
	Attributes map[string]any
}

// ParseInput splits a decoded JSON/YAML object into title and attributes.
// Store-managed keys (id, created_at, updated_at) are ignored.
func ParseInput(m map[string]any) (Input, error) {
	var in Input
	for k, v := range m {
		switch k {
		case fieldID, fieldCreatedAt, fieldUpdatedAt:
			continue
		case fieldTitle:
			s, ok := v.(string)
			if !ok {
				return Input{}, invalid(fieldTitle, "must be a string")
			}
			in.Title = &s
		default:
			if in.Attributes == nil {
				in.Attributes = make(map[string]any, len(m))
			}
			in.Attributes[k] = v
		}
	}
	return in, nil
}

func checkTitle(title *string) (string, error) {
	if title == nil {
		return "", invalid(fieldTitle, "required")
	}
	t := strings.TrimSpace(*title)
	if t == "" {
		return "", invalid(fieldTitle, "must not be empty")
	}
	if utf8.RuneCountInString(t) > MaxTitleLen {
		return "", invalid(fieldTitle, fmt.Sprintf("must be at most %d characters", MaxTitleLen))
	}
	return t, nil
}

// checkAttributes validates keys and coerces values to the scalar set.
// With keepNil the nil values survive as removal markers.
func checkAttributes(attrs map[string]any, keepNil bool) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	seen := make(map[string]struct{}, len(attrs))
	for k, v := range attrs {
		key := strings.TrimSpace(k)
		_, dup := seen[key]
		switch {
		case key == "":
			return nil, invalid("attributes", "empty key")
		case len(key) > maxAttrKey:
			return nil, invalid(key, "key too long")
		case key == fieldID || key == fieldTitle || key == fieldCreatedAt || key == fieldUpdatedAt:
			return nil, invalid(key, "reserved")
		case dup:
			return nil, invalid(key, "duplicate key after trimming spaces")
		}
		seen[key] = struct{}{}

		if v == nil {
			if keepNil {
				out[key] = nil
			}
			continue
		}

		sv, ok := scalar(v)
		if !ok {
			return nil, invalid(key, "must be a string, finite number or boolean")
		}
		out[key] = sv
	}
	return out, nil
}

func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case string, bool, int64:
		return x, true
	case float64:
		return x, finite(x)
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return float64(x), true
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return float64(x), true
		}
		return int64(x), true
	case float32:
		return float64(x), finite(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		return f, err == nil && finite(f)
	case []byte:
		return string(x), true
	case time.Time:
		return x.UTC().Format(time.RFC3339), true
	default:
		return nil, false
	}
}

// finite rejects NaN and infinities, which JSON cannot encode.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func mergeAttributes(cur, patch map[string]any) map[string]any {
	out := maps.Clone(cur)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
