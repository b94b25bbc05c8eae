package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source yields raw course objects, one map per record.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]map[string]any, error)
}

// collectionKey is the wrapper key accepted around a record list in files.
const collectionKey = "courses"

var ErrUnsupportedFormat = errors.New("unsupported data file format")

// FileSource reads a JSON or YAML file holding either a list of records or
// an object with a "courses" list.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return f.Path }

func (f FileSource) Fetch(ctx context.Context) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}

	var doc any
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		err = dec.Decode(&doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}

	return records(doc)
}

func records(doc any) ([]map[string]any, error) {
	if m, ok := doc.(map[string]any); ok {
		inner, ok := m[collectionKey]
		if !ok {
			return nil, fmt.Errorf("object without %q list", collectionKey)
		}
		doc = inner
	}

	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of records, got %T", doc)
	}

	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d: expected an object, got %T", i, item)
		}
		out = append(out, m)
	}
	return out, nil
}
