package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"CourseStore/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"PORT", "LOG_LEVEL", "DATA_FILES", "DATA_DSN", "DATA_QUERY", "JWT_SECRET", "STRICT_LOAD"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	data := filepath.Join(dir, "courses.json")
	if err := os.WriteFile(data, []byte(`[
		{"title": "Calculus I"},
		{"title": "Precalculus"},
		{"title": "Calculus II"}
	]`), 0o600); err != nil {
		t.Fatalf("write data: %v", err)
	}

	cfg := filepath.Join(dir, "coursestore.yaml")
	body := "data_files: [" + data + "]\njwt_secret: " + testSecret + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfg
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestSearchCommand(t *testing.T) {
	cfg := setupConfig(t)

	titlesOf := func(out string) []string {
		var got []string
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			var rec struct {
				Title string `json:"title"`
			}
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				t.Fatalf("decode %q: %v", line, err)
			}
			got = append(got, rec.Title)
		}
		return got
	}

	got := titlesOf(run(t, "search", "-c", cfg, "calc"))
	if strings.Join(got, "|") != "Calculus I|Precalculus|Calculus II" {
		t.Fatalf("substring: %v", got)
	}

	got = titlesOf(run(t, "search", "-c", cfg, "--prefix", "calc"))
	if strings.Join(got, "|") != "Calculus I|Calculus II" {
		t.Fatalf("prefix: %v", got)
	}
	searchPrefix = false
}

func TestTokenCommand(t *testing.T) {
	cfg := setupConfig(t)

	raw := strings.TrimSpace(run(t, "token", "-c", cfg, "--subject", "ci", "--role", "admin"))
	c, err := auth.NewTokenMaker(testSecret).Parse(raw)
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if c.Subject != "ci" || c.Role != auth.RoleAdmin {
		t.Fatalf("claims=%+v", c)
	}
	tokenSubject, tokenRole = "admin", auth.RoleEditor

	rootCmd.SetArgs([]string{"token", "-c", cfg, "--role", "root"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("unknown role accepted")
	}
	tokenRole = auth.RoleEditor
}
